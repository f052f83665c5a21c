package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/solitraderbusiness/ClanTrader-sub000/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	WSHandler      *WSHandler
	TradeHandler   *TradeHandler
	MessageHandler *MessageHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging for high-frequency endpoints to reduce noise
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics" || path == "/ws"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":  "healthy",
			"service": "clantrader-realtime",
		})
	})

	// Prometheus scrape endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Websocket entrypoint (token authenticated inside the handler)
	e.GET("/ws", config.WSHandler.Connect)

	// Read-only REST views (protected with AuthMiddleware)
	api := e.Group("/api", custommiddleware.AuthMiddleware)
	{
		api.GET("/trades", config.TradeHandler.GetMyTrades)
		api.GET("/trades/:id", config.TradeHandler.GetTrade)
		api.GET("/trades/:id/history", config.TradeHandler.GetTradeHistory)
		api.GET("/clans/:clan_id/topics/:topic_id/messages", config.MessageHandler.GetClanMessages)
		api.GET("/dms/:peer_id/messages", config.MessageHandler.GetDMMessages)
	}
}
