package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/infra"
)

const (
	evtTradeActionExecuted = "trade_action_executed"

	// DefaultActionExpiry is the fixed horizon an agent has to pick up
	// and report a dispatched action before it times out passively.
	DefaultActionExpiry = 2 * time.Minute
)

// DispatchService issues trade-modification requests to the linked
// execution agent, tracks their expiry, and reconciles reported results.
type DispatchService struct {
	trades   domain.TradeRepository
	actions  domain.PendingActionRepository
	tradeSvc *TradeService
	bcast    domain.Broadcaster
	expiry   time.Duration
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	trades domain.TradeRepository,
	actions domain.PendingActionRepository,
	tradeSvc *TradeService,
	bcast domain.Broadcaster,
	expiry time.Duration,
) *DispatchService {
	if expiry <= 0 {
		expiry = DefaultActionExpiry
	}
	return &DispatchService{
		trades:   trades,
		actions:  actions,
		tradeSvc: tradeSvc,
		bcast:    bcast,
		expiry:   expiry,
	}
}

// ActionPayload is the broadcast shape for action lifecycle events. A nil
// resolution renders as an in-flight affordance; the same event name
// serves the optimistic echo and every later authoritative update, so
// clients reconcile by action id.
type ActionPayload struct {
	Action *domain.PendingAction `json:"action"`
	Trade  *domain.Trade         `json:"trade"`
}

// Dispatch creates a Pending Action for the trade. Single-flight per
// trade: a second dispatch while one is pending is rejected, not queued.
func (s *DispatchService) Dispatch(ctx context.Context, tradeID, requesterID uuid.UUID, actionType domain.ActionType, newValue *float64, newStatus *string, note string) (*domain.PendingAction, error) {
	if !actionType.Valid() {
		return nil, domain.NewValidationError("Unknown action type")
	}

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, domain.NewNotFoundError("Trade not found")
	}
	if trade.TrackerID != requesterID {
		return nil, domain.NewAccessDeniedError("Only the tracker can act on this trade")
	}

	now := time.Now()

	// ADD_NOTE is a chat-only annotation: it bypasses the agent entirely,
	// even on agent-linked trades, and resolves immediately.
	if !actionType.RequiresAgent() {
		if err := s.trades.AppendHistory(ctx, &domain.TradeStatusHistory{
			ID:         uuid.New(),
			TradeID:    trade.ID,
			FromStatus: &trade.Status,
			ToStatus:   trade.Status,
			ChangedBy:  requesterID,
			Note:       note,
			At:         now,
		}); err != nil {
			log.Printf("[ERR] DispatchService: failed to append note: %v", err)
			return nil, domain.NewInternalError()
		}
		resolution := domain.ActionSucceeded
		action := &domain.PendingAction{
			ID:          uuid.New(),
			TradeID:     trade.ID,
			RequestedBy: requesterID,
			ActionType:  actionType,
			Note:        note,
			Resolution:  &resolution,
			CreatedAt:   now,
			ResolvedAt:  &now,
		}
		s.bcast.Broadcast(trade.RoomKey, evtTradeActionExecuted, ActionPayload{Action: action, Trade: trade})
		return action, nil
	}

	if !trade.MTLinked || trade.AgentAccountID == nil {
		return nil, domain.NewValidationError("Trade is not linked to an execution agent")
	}
	if domain.IsTerminalTradeStatus(trade.Status) {
		return nil, domain.NewConflictError("Trade is already resolved")
	}

	action := &domain.PendingAction{
		ID:             uuid.New(),
		TradeID:        trade.ID,
		AgentAccountID: *trade.AgentAccountID,
		RequestedBy:    requesterID,
		ActionType:     actionType,
		NewValue:       newValue,
		NewStatus:      newStatus,
		Note:           note,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.expiry),
	}

	created, err := s.actions.CreateIfIdle(ctx, action)
	if err != nil {
		log.Printf("[ERR] DispatchService: failed to create action: %v", err)
		return nil, domain.NewInternalError()
	}
	if !created {
		return nil, domain.NewConflictError("An action is already pending for this trade")
	}

	trade.PendingActionID = &action.ID
	trade.UpdatedAt = now
	if err := s.trades.Update(ctx, trade); err != nil {
		log.Printf("WARNING: DispatchService: failed to set pending pointer on %s: %v", trade.ID, err)
	}

	infra.MetricActionsDispatched.WithLabelValues(string(actionType)).Inc()

	// Optimistic broadcast with a nil resolution so the UI can render the
	// pending affordance immediately.
	s.bcast.Broadcast(trade.RoomKey, evtTradeActionExecuted, ActionPayload{Action: action, Trade: trade})
	return action, nil
}

// Outstanding returns the in-flight, unexpired actions addressed to an
// agent account. Served to the agent's polling endpoint.
func (s *DispatchService) Outstanding(ctx context.Context, accountID uuid.UUID) ([]*domain.PendingAction, error) {
	return s.actions.GetOutstanding(ctx, accountID, time.Now())
}

// Resolve applies an agent-reported result. Only the agent account the
// action was dispatched to may resolve it. On success the trade service
// applies the corresponding change; on failure the trade is untouched and
// the error surfaces as a first-class state, not a protocol error.
func (s *DispatchService) Resolve(ctx context.Context, actionID, accountID uuid.UUID, success bool, agentError string, resultValue *float64) error {
	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return domain.NewNotFoundError("Action not found")
	}
	if action.AgentAccountID != accountID {
		return domain.NewAccessDeniedError("Action belongs to a different agent account")
	}

	resolution := domain.ActionSucceeded
	var errMsg *string
	if !success {
		resolution = domain.ActionFailed
		if agentError == "" {
			agentError = "agent reported failure"
		}
		errMsg = &agentError
	}

	now := time.Now()
	ok, err := s.actions.Resolve(ctx, actionID, resolution, errMsg, now)
	if err != nil {
		log.Printf("[ERR] DispatchService: failed to resolve action %s: %v", actionID, err)
		return domain.NewInternalError()
	}
	if !ok {
		return domain.NewConflictError("Action is already resolved")
	}
	action.Resolution = &resolution
	action.ErrorMessage = errMsg
	action.ResolvedAt = &now

	trade, err := s.trades.GetByID(ctx, action.TradeID)
	if err != nil {
		return domain.NewNotFoundError("Trade not found")
	}
	s.clearPending(ctx, trade)

	if success {
		if resultValue != nil {
			action.NewValue = resultValue
		}
		if err := s.tradeSvc.ApplyAgentResult(ctx, trade, action); err != nil {
			log.Printf("[ERR] DispatchService: failed to apply %s on trade %s: %v", action.ActionType, trade.ID, err)
			return err
		}
	}

	infra.MetricActionsResolved.WithLabelValues(resolution).Inc()
	s.bcast.Broadcast(trade.RoomKey, evtTradeActionExecuted, ActionPayload{Action: action, Trade: trade})
	return nil
}

// ExpireOverdue marks every in-flight action past its deadline as
// TIMED_OUT and notifies the rooms. Trade state is left unchanged; the
// tracker must re-issue the action. Called by the cron sweeper.
func (s *DispatchService) ExpireOverdue(ctx context.Context) error {
	expired, err := s.actions.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, action := range expired {
		trade, err := s.trades.GetByID(ctx, action.TradeID)
		if err != nil {
			log.Printf("WARNING: DispatchService: expired action %s has no trade: %v", action.ID, err)
			continue
		}
		s.clearPending(ctx, trade)
		infra.MetricActionsResolved.WithLabelValues(domain.ActionTimedOut).Inc()
		s.bcast.Broadcast(trade.RoomKey, evtTradeActionExecuted, ActionPayload{Action: action, Trade: trade})
	}
	if len(expired) > 0 {
		log.Printf("[OK] DispatchService: timed out %d overdue action(s)", len(expired))
	}
	return nil
}

func (s *DispatchService) clearPending(ctx context.Context, trade *domain.Trade) {
	if trade.PendingActionID == nil {
		return
	}
	trade.PendingActionID = nil
	trade.UpdatedAt = time.Now()
	if err := s.trades.Update(ctx, trade); err != nil {
		log.Printf("WARNING: DispatchService: failed to clear pending pointer on %s: %v", trade.ID, err)
	}
}
