package agentapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// Handler is the EA bridge surface. The terminal agent polls and posts
// over plain HTTP; it never touches the websocket protocol.
type Handler struct {
	accounts domain.AgentAccountRepository
	trades   domain.TradeRepository
	tradeSvc *service.TradeService
	dispatch *service.DispatchService
}

// NewHandler creates a new agent bridge handler
func NewHandler(
	accounts domain.AgentAccountRepository,
	trades domain.TradeRepository,
	tradeSvc *service.TradeService,
	dispatch *service.DispatchService,
) *Handler {
	return &Handler{
		accounts: accounts,
		trades:   trades,
		tradeSvc: tradeSvc,
		dispatch: dispatch,
	}
}

type heartbeatRequest struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	OpenPositions int     `json:"open_positions"`
}

// Heartbeat handles POST /heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing agent account")
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed heartbeat payload")
		return
	}

	if err := h.accounts.UpdateSnapshot(r.Context(), account.ID, req.Balance, req.Equity, req.OpenPositions, time.Now()); err != nil {
		log.Printf("[ERR] agentapi: heartbeat snapshot for %s: %v", account.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to store snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tradeEventRequest struct {
	Ticket     int64    `json:"ticket"`
	Event      string   `json:"event"` // OPENED | CLOSED | MODIFIED
	ClosePrice float64  `json:"close_price"`
	Profit     *float64 `json:"profit"`
}

// TradeEvent handles POST /trade-event. Only close events change trade
// state; open and modify notifications are acknowledged so old EA builds
// keep working.
func (h *Handler) TradeEvent(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing agent account")
		return
	}

	var req tradeEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed trade event payload")
		return
	}

	trade, err := h.trades.GetByAgentTicket(r.Context(), account.ID, req.Ticket)
	if err != nil {
		log.Printf("[ERR] agentapi: lookup ticket %d: %v", req.Ticket, err)
		writeError(w, http.StatusInternalServerError, "Failed to look up trade")
		return
	}
	if trade == nil {
		// Not every terminal position is a tracked clan trade.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if req.Event != "CLOSED" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	if err := h.tradeSvc.CloseFromAgent(r.Context(), trade, req.ClosePrice, req.Profit); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_resolved"})
			return
		}
		log.Printf("[ERR] agentapi: close trade %s: %v", trade.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to apply close event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "trade_id": trade.ID.String()})
}

type syncRequest struct {
	Trades []tradeEventRequest `json:"trades"`
}

type syncResult struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
	Failed  int `json:"failed"`
}

// SyncTrades handles POST /trades/sync. The EA uploads its recent close
// history after reconnecting so trades closed while the bridge was down
// still resolve.
func (h *Handler) SyncTrades(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing agent account")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed sync payload")
		return
	}

	var result syncResult
	for _, evt := range req.Trades {
		trade, err := h.trades.GetByAgentTicket(r.Context(), account.ID, evt.Ticket)
		if err != nil {
			result.Failed++
			continue
		}
		if trade == nil || domain.IsTerminalTradeStatus(trade.Status) {
			result.Ignored++
			continue
		}
		if err := h.tradeSvc.CloseFromAgent(r.Context(), trade, evt.ClosePrice, evt.Profit); err != nil {
			log.Printf("WARNING: agentapi: sync close ticket %d: %v", evt.Ticket, err)
			result.Failed++
			continue
		}
		result.Applied++
	}
	writeJSON(w, http.StatusOK, result)
}

// PollActions handles GET /poll-actions
func (h *Handler) PollActions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing agent account")
		return
	}

	actions, err := h.dispatch.Outstanding(r.Context(), account.ID)
	if err != nil {
		log.Printf("[ERR] agentapi: poll actions for %s: %v", account.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load actions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

type actionResultRequest struct {
	Success     bool     `json:"success"`
	Error       string   `json:"error"`
	ResultValue *float64 `json:"result_value"`
}

// ActionResult handles POST /actions/{id}/result
func (h *Handler) ActionResult(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing agent account")
		return
	}

	actionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action ID")
		return
	}

	var req actionResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed result payload")
		return
	}

	if err := h.dispatch.Resolve(r.Context(), actionID, account.ID, req.Success, req.Error, req.ResultValue); err != nil {
		switch domain.KindOf(err) {
		case domain.KindNotFound:
			writeError(w, http.StatusNotFound, "Unknown action")
		case domain.KindAccessDenied:
			writeError(w, http.StatusForbidden, "Action belongs to a different agent account")
		case domain.KindConflict:
			// Duplicate result or a result racing the expiry sweep.
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_resolved"})
		default:
			log.Printf("[ERR] agentapi: resolve action %s: %v", actionID, err)
			writeError(w, http.StatusInternalServerError, "Failed to resolve action")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("WARNING: agentapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
