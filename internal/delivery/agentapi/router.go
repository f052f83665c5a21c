package agentapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// NewRouter assembles the EA bridge router. It runs on its own listener
// so the untrusted bridge never shares the client-facing server.
func NewRouter(handler *Handler, accounts domain.AgentAccountRepository) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(accounts))

		r.Post("/heartbeat", handler.Heartbeat)
		r.Post("/trade-event", handler.TradeEvent)
		r.Post("/trades/sync", handler.SyncTrades)
		r.Get("/poll-actions", handler.PollActions)
		r.Post("/actions/{id}/result", handler.ActionResult)
	})

	return r
}
