package http

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	custommiddleware "github.com/solitraderbusiness/ClanTrader-sub000/internal/middleware"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// MessageHandler serves read-only room history for the scrollback view.
// All mutations go through the websocket protocol.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// GetClanMessages handles GET /api/clans/:clan_id/topics/:topic_id/messages
func (h *MessageHandler) GetClanMessages(c echo.Context) error {
	userID, err := custommiddleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Authentication required")
	}

	clanID, err := uuid.Parse(c.Param("clan_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid clan ID")
	}
	topicID, err := uuid.Parse(c.Param("topic_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid topic ID")
	}

	limit, err := historyLimit(c)
	if err != nil {
		return BadRequestResponse(c, "Invalid limit parameter")
	}

	room := domain.NewClanRoomKey(clanID, topicID)
	messages, err := h.messages.Recent(c.Request().Context(), room, userID, limit)
	if err != nil {
		return domainErrorResponse(c, err)
	}
	return SuccessResponse(c, messages)
}

// GetDMMessages handles GET /api/dms/:peer_id/messages
func (h *MessageHandler) GetDMMessages(c echo.Context) error {
	userID, err := custommiddleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Authentication required")
	}

	peerID, err := uuid.Parse(c.Param("peer_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid peer ID")
	}
	if peerID == uuid.Nil || peerID == userID {
		return BadRequestResponse(c, "Invalid DM peer")
	}

	limit, err := historyLimit(c)
	if err != nil {
		return BadRequestResponse(c, "Invalid limit parameter")
	}

	room := domain.NewDMRoomKey(userID, peerID)
	messages, err := h.messages.Recent(c.Request().Context(), room, userID, limit)
	if err != nil {
		return domainErrorResponse(c, err)
	}
	return SuccessResponse(c, messages)
}

func historyLimit(c echo.Context) (int, error) {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return 0, echo.ErrBadRequest
		}
		limit = n
	}
	return limit, nil
}
