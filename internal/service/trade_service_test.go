package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

type tradeFixture struct {
	svc       *TradeService
	messages  *fakeMessageRepo
	cards     *fakeCardRepo
	trades    *fakeTradeRepo
	directory *fakeDirectory
	bcast     *fakeBroadcaster
	clanID    uuid.UUID
	room      domain.RoomKey
	author    uuid.UUID
	tracker   uuid.UUID
}

func newTradeFixture(t *testing.T) *tradeFixture {
	t.Helper()
	messages := newFakeMessageRepo()
	cards := newFakeCardRepo()
	trades := newFakeTradeRepo()
	directory := newFakeDirectory()
	bcast := &fakeBroadcaster{}

	messages.cards = cards

	clanID, topicID := uuid.New(), uuid.New()
	f := &tradeFixture{
		svc:       NewTradeService(messages, cards, trades, directory, bcast, NewMessageService(messages, directory, bcast)),
		messages:  messages,
		cards:     cards,
		trades:    trades,
		directory: directory,
		bcast:     bcast,
		clanID:    clanID,
		room:      domain.NewClanRoomKey(clanID, topicID),
		author:    uuid.New(),
		tracker:   uuid.New(),
	}
	directory.addMember(clanID, f.author, "author", domain.RoleMember)
	directory.addMember(clanID, f.tracker, "tracker", domain.RoleMember)
	return f
}

func signalInput() CardInput {
	return CardInput{
		Instrument: "XAUUSD",
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		StopLoss:   95,
		Target:     110,
		Timeframe:  "H1",
		CardType:   domain.CardTypeSignal,
	}
}

// postCard posts a signal card and returns its id.
func (f *tradeFixture) postCard(t *testing.T, input CardInput) uuid.UUID {
	t.Helper()
	msg, err := f.svc.SendCard(context.Background(), f.room, f.author, input, "setup looks clean")
	if err != nil {
		t.Fatalf("SendCard failed: %v", err)
	}
	return msg.Card.ID
}

// trackCard tracks a posted card and fails the test on error.
func (f *tradeFixture) trackCard(t *testing.T, cardID uuid.UUID, input TrackInput) *domain.Trade {
	t.Helper()
	trade, err := f.svc.Track(context.Background(), cardID, f.tracker, input)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	return trade
}

func TestSendCardValidatesAndBroadcasts(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendCard(ctx, f.room, f.author, signalInput(), "going long here")
	if err != nil {
		t.Fatalf("SendCard failed: %v", err)
	}
	if msg.Type != domain.MessageTypeTradeCard || msg.Card == nil {
		t.Fatalf("unexpected message: %+v", msg)
	}

	rec := f.bcast.last()
	payload := rec.Payload.(MessagePayload)
	if payload.RR != 2.0 {
		t.Fatalf("expected static RR 2.0 for 100/95/110, got %v", payload.RR)
	}

	dm := domain.NewDMRoomKey(f.author, f.tracker)
	if _, err := f.svc.SendCard(ctx, dm, f.author, signalInput(), "psst"); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("trade cards in DM rooms should fail validation, got %v", err)
	}

	bad := signalInput()
	bad.StopLoss = 0
	if _, err := f.svc.SendCard(ctx, f.room, f.author, bad, "?"); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("signal without stop loss should fail validation, got %v", err)
	}
}

func TestEditCardAuthorOnlyAndVersioned(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())

	update := signalInput()
	update.Target = 120
	if _, err := f.svc.EditCard(ctx, cardID, f.tracker, update); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("non-author card edit should be denied, got %v", err)
	}

	card, err := f.svc.EditCard(ctx, cardID, f.author, update)
	if err != nil {
		t.Fatalf("EditCard failed: %v", err)
	}
	if card.Target != 120 || card.Version != 2 {
		t.Fatalf("expected updated target at version 2, got %+v", card)
	}
}

func TestTrackSnapshotsLevelsOnce(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())

	trade, err := f.svc.Track(ctx, cardID, f.tracker, TrackInput{})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if trade.Status != domain.TradeStatusPending {
		t.Fatalf("expected PENDING, got %s", trade.Status)
	}
	if trade.SnapEntry != 100 || trade.SnapStop != 95 || trade.SnapTarget != 110 || trade.SnapRisk != 5 {
		t.Fatalf("bad snapshot: %+v", trade)
	}
	if trade.IntegrityStatus != domain.IntegrityManual {
		t.Fatalf("untracked integrity should be MANUAL, got %s", trade.IntegrityStatus)
	}

	// The snapshot must survive later card edits.
	update := signalInput()
	update.EntryPrice = 105
	if _, err := f.svc.EditCard(ctx, cardID, f.author, update); err != nil {
		t.Fatalf("EditCard failed: %v", err)
	}
	reloaded, err := f.svc.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("GetTrade failed: %v", err)
	}
	if reloaded.SnapEntry != 100 {
		t.Fatalf("snapshot must be immutable, got entry %v", reloaded.SnapEntry)
	}
}

func TestTrackTwiceReturnsExistingTrade(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())

	first, err := f.svc.Track(ctx, cardID, f.tracker, TrackInput{AtMarket: true})
	if err != nil {
		t.Fatalf("first Track failed: %v", err)
	}
	second, err := f.svc.Track(ctx, cardID, f.tracker, TrackInput{})
	if err != nil {
		t.Fatalf("second Track failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("second track must return the existing trade, not create another")
	}
}

func TestTrackRejectsAnalysisCards(t *testing.T) {
	f := newTradeFixture(t)
	input := signalInput()
	input.CardType = domain.CardTypeAnalysis
	cardID := f.postCard(t, input)

	_, err := f.svc.Track(context.Background(), cardID, f.tracker, TrackInput{})
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("tracking an analysis card should fail validation, got %v", err)
	}
}

func TestUpdateStatusTPHitComputesFinalR(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	updated, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusTPHit, "", nil)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.FinalR == nil || *updated.FinalR != 2.0 {
		t.Fatalf("LONG 100/95/110 at target should be +2.0R, got %v", updated.FinalR)
	}

	rec := f.bcast.last()
	if rec.Event != "trade_status_updated" {
		t.Fatalf("expected trade_status_updated, got %s", rec.Event)
	}
}

func TestUpdateStatusSLHitIsMinusOneR(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	slipped := 94.2 // worse than the stop; the convention still pays -1R
	updated, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusSLHit, "", &slipped)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.FinalR == nil || *updated.FinalR != -1 {
		t.Fatalf("SL_HIT must be exactly -1R, got %v", updated.FinalR)
	}
}

func TestUpdateStatusShortRMultiple(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	input := signalInput()
	input.Direction = domain.DirectionShort
	input.StopLoss = 105
	input.Target = 90
	cardID := f.postCard(t, input)
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	updated, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusTPHit, "", nil)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.FinalR == nil || *updated.FinalR != 2.0 {
		t.Fatalf("SHORT 100/105/90 at target should be +2.0R, got %v", updated.FinalR)
	}
}

func TestUpdateStatusGuards(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.author, domain.TradeStatusBreakEven, "", nil); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("non-tracker update should be denied, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, "LAMBO", "", nil); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusClosed, "", nil); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusTPHit, "", nil); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("update on a resolved trade should conflict, got %v", err)
	}
}

func TestManualUpdateDisabledForAgentLinkedTrades(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())

	accountID := uuid.New()
	ticket := int64(42)
	trade, err := f.svc.Track(ctx, cardID, f.tracker, TrackInput{
		AtMarket:       true,
		AgentAccountID: &accountID,
		AgentTicket:    &ticket,
	})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if !trade.MTLinked {
		t.Fatal("trade with an agent account should be MT-linked")
	}

	_, err = f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusClosed, "", nil)
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("manual update on a linked trade should be denied, got %v", err)
	}
	if !strings.Contains(err.Error(), "agent-linked") {
		t.Fatalf("rejection should explain the agent link, got %q", err.Error())
	}
}

func TestApplyAgentResultMovesLevels(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	accountID := uuid.New()
	ticket := int64(7)
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true, AgentAccountID: &accountID, AgentTicket: &ticket})

	action := &domain.PendingAction{
		ID:             uuid.New(),
		TradeID:        trade.ID,
		AgentAccountID: accountID,
		RequestedBy:    f.tracker,
		ActionType:     domain.ActionSetBE,
	}
	if err := f.svc.ApplyAgentResult(ctx, trade, action); err != nil {
		t.Fatalf("ApplyAgentResult failed: %v", err)
	}
	reloaded, _ := f.svc.GetTrade(ctx, trade.ID)
	if reloaded.LiveStop != reloaded.SnapEntry {
		t.Fatalf("SET_BE should park the stop at entry, got %v", reloaded.LiveStop)
	}
	if reloaded.SnapStop != 95 {
		t.Fatal("snapshot stop must not move")
	}

	newTP := 125.0
	action = &domain.PendingAction{ID: uuid.New(), TradeID: trade.ID, AgentAccountID: accountID, RequestedBy: f.tracker, ActionType: domain.ActionChangeTP, NewValue: &newTP}
	if err := f.svc.ApplyAgentResult(ctx, reloaded, action); err != nil {
		t.Fatalf("CHANGE_TP failed: %v", err)
	}
	reloaded, _ = f.svc.GetTrade(ctx, trade.ID)
	if reloaded.LiveTarget != 125 {
		t.Fatalf("CHANGE_TP should move the live target, got %v", reloaded.LiveTarget)
	}

	action = &domain.PendingAction{ID: uuid.New(), TradeID: trade.ID, AgentAccountID: accountID, RequestedBy: f.tracker, ActionType: domain.ActionMoveSL}
	if err := f.svc.ApplyAgentResult(ctx, reloaded, action); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("MOVE_SL without a value should fail validation, got %v", err)
	}
}

func TestCloseFromAgentClassifiesOutcome(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	accountID := uuid.New()

	setup := func(ticket int64) *domain.Trade {
		cardID := f.postCard(t, signalInput())
		trade, err := f.svc.Track(ctx, cardID, f.tracker, TrackInput{AtMarket: true, AgentAccountID: &accountID, AgentTicket: &ticket})
		if err != nil {
			t.Fatalf("Track failed: %v", err)
		}
		return trade
	}

	t.Run("target reached", func(t *testing.T) {
		trade := setup(1)
		profit := 250.0
		if err := f.svc.CloseFromAgent(ctx, trade, 110.5, &profit); err != nil {
			t.Fatalf("CloseFromAgent failed: %v", err)
		}
		reloaded, _ := f.svc.GetTrade(ctx, trade.ID)
		if reloaded.Status != domain.TradeStatusTPHit {
			t.Fatalf("expected TP_HIT, got %s", reloaded.Status)
		}
		if reloaded.IntegrityStatus != domain.IntegrityVerified {
			t.Fatalf("agent close should be VERIFIED, got %s", reloaded.IntegrityStatus)
		}
		if reloaded.NetProfit == nil || *reloaded.NetProfit != 250 {
			t.Fatalf("net profit should be recorded, got %v", reloaded.NetProfit)
		}
	})

	t.Run("stop reached", func(t *testing.T) {
		trade := setup(2)
		if err := f.svc.CloseFromAgent(ctx, trade, 94.8, nil); err != nil {
			t.Fatalf("CloseFromAgent failed: %v", err)
		}
		reloaded, _ := f.svc.GetTrade(ctx, trade.ID)
		if reloaded.Status != domain.TradeStatusSLHit {
			t.Fatalf("expected SL_HIT, got %s", reloaded.Status)
		}
		if reloaded.FinalR == nil || *reloaded.FinalR != -1 {
			t.Fatalf("SL_HIT should settle at -1R, got %v", reloaded.FinalR)
		}
	})

	t.Run("unreconcilable close", func(t *testing.T) {
		trade := setup(3)
		if err := f.svc.CloseFromAgent(ctx, trade, 0, nil); err != nil {
			t.Fatalf("CloseFromAgent failed: %v", err)
		}
		reloaded, _ := f.svc.GetTrade(ctx, trade.ID)
		if reloaded.Status != domain.TradeStatusUnverified || reloaded.IntegrityStatus != domain.IntegrityUnverified {
			t.Fatalf("zero close price should land UNVERIFIED, got %s/%s", reloaded.Status, reloaded.IntegrityStatus)
		}
		if reloaded.FinalR != nil {
			t.Fatalf("unpriced close must not record an R, got %v", *reloaded.FinalR)
		}
		if reloaded.ClosePrice != nil {
			t.Fatalf("unpriced close must not record a close price, got %v", *reloaded.ClosePrice)
		}
	})
}

func TestTerminalStatusPostsSystemSummary(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusTPHit, "", nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	recent, err := f.messages.GetRecent(ctx, f.room, 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	var summary *domain.Message
	for _, msg := range recent {
		if msg.Type == domain.MessageTypeSystemSummary {
			summary = msg
			break
		}
	}
	if summary == nil {
		t.Fatal("terminal status should post a system summary to the room")
	}
	if summary.AuthorID != uuid.Nil {
		t.Fatalf("system summary must have no author, got %s", summary.AuthorID)
	}
	if !strings.Contains(summary.Content, "XAUUSD") || !strings.Contains(summary.Content, domain.TradeStatusTPHit) {
		t.Fatalf("summary should name the instrument and outcome, got %q", summary.Content)
	}
	if !strings.Contains(summary.Content, "+2.00R") {
		t.Fatalf("summary should carry the final R, got %q", summary.Content)
	}
}

func TestTrackWritesHistoryWithNilFromStatus(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()
	cardID := f.postCard(t, signalInput())
	trade := f.trackCard(t, cardID, TrackInput{AtMarket: true})

	time.Sleep(time.Millisecond)
	if _, err := f.svc.UpdateStatus(ctx, trade.ID, f.tracker, domain.TradeStatusBreakEven, "flat", nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	history, err := f.svc.GetTradeHistory(ctx, trade.ID)
	if err != nil {
		t.Fatalf("GetTradeHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].FromStatus != nil {
		t.Fatal("tracking row must have a nil from-status")
	}
	if history[1].FromStatus == nil || *history[1].FromStatus != domain.TradeStatusOpen || history[1].ToStatus != domain.TradeStatusBreakEven {
		t.Fatalf("unexpected transition row: %+v", history[1])
	}
}
