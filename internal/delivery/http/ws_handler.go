package http

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/hub"
	custommiddleware "github.com/solitraderbusiness/ClanTrader-sub000/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser origin checks belong to the edge proxy in front of us.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated clients and runs their session pumps.
type WSHandler struct {
	gateway *hub.Gateway
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(gateway *hub.Gateway) *WSHandler {
	return &WSHandler{gateway: gateway}
}

// Connect handles GET /ws. The token may arrive as a query parameter
// because browser websocket clients cannot set headers.
func (h *WSHandler) Connect(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return UnauthorizedResponse(c, "Missing authentication token")
	}

	claims, err := custommiddleware.ParseToken(token)
	if err != nil {
		return UnauthorizedResponse(c, "Invalid or expired token")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("WARNING: websocket upgrade failed for user %s: %v", claims.UserID, err)
		return nil
	}

	session := hub.NewSession(claims.UserID, claims.DisplayName, claims.Role)
	h.gateway.Register(session)

	go session.WritePump(conn)
	session.ReadPump(conn, h.gateway)
	return nil
}
