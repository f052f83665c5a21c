package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

type messageFixture struct {
	svc       *MessageService
	repo      *fakeMessageRepo
	directory *fakeDirectory
	bcast     *fakeBroadcaster
	clanID    uuid.UUID
	room      domain.RoomKey
	alice     uuid.UUID
	bob       uuid.UUID
	leader    uuid.UUID
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	repo := newFakeMessageRepo()
	directory := newFakeDirectory()
	bcast := &fakeBroadcaster{}

	clanID, topicID := uuid.New(), uuid.New()
	f := &messageFixture{
		svc:       NewMessageService(repo, directory, bcast),
		repo:      repo,
		directory: directory,
		bcast:     bcast,
		clanID:    clanID,
		room:      domain.NewClanRoomKey(clanID, topicID),
		alice:     uuid.New(),
		bob:       uuid.New(),
		leader:    uuid.New(),
	}
	directory.addMember(clanID, f.alice, "alice", domain.RoleMember)
	directory.addMember(clanID, f.bob, "bob", domain.RoleMember)
	directory.addMember(clanID, f.leader, "leader", domain.RoleLeader)
	return f
}

func TestSendMessageBroadcastsWithAuthor(t *testing.T) {
	f := newMessageFixture(t)

	msg, err := f.svc.Send(context.Background(), f.room, f.alice, "Hello", nil, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Content != "Hello" || msg.Type != domain.MessageTypeText {
		t.Fatalf("unexpected message: %+v", msg)
	}

	rec := f.bcast.last()
	if rec == nil {
		t.Fatal("expected a broadcast")
	}
	if rec.Event != "receive_message" || rec.Room != f.room {
		t.Fatalf("unexpected broadcast %s to %s", rec.Event, rec.Room)
	}
	payload, ok := rec.Payload.(MessagePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", rec.Payload)
	}
	if payload.Author == nil || payload.Author.ID != f.alice {
		t.Fatal("broadcast payload should carry the denormalized author")
	}
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	f := newMessageFixture(t)
	outsider := uuid.New()

	_, err := f.svc.Send(context.Background(), f.room, outsider, "hi", nil, false)
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
	if len(f.bcast.all()) != 0 {
		t.Fatal("rejected send must not broadcast")
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, f.room, f.alice, "   ", nil, false); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("blank content should fail validation, got %v", err)
	}
	if _, err := f.svc.Send(ctx, f.room, f.alice, "", nil, true); err != nil {
		t.Fatalf("empty content with attachments should pass, got %v", err)
	}
	long := strings.Repeat("x", domain.MaxContentLength+1)
	if _, err := f.svc.Send(ctx, f.room, f.alice, long, nil, false); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("over-length content should fail validation, got %v", err)
	}
}

func TestEditMessageAuthorOnly(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, f.room, f.alice, "original", nil, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, err := f.svc.Edit(ctx, msg.ID, f.bob, "hijacked"); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("non-author edit should be denied, got %v", err)
	}

	edited, err := f.svc.Edit(ctx, msg.ID, f.alice, "fixed")
	if err != nil {
		t.Fatalf("author edit failed: %v", err)
	}
	if edited.Content != "fixed" || !edited.Edited {
		t.Fatalf("unexpected edit result: %+v", edited)
	}
	if rec := f.bcast.last(); rec.Event != "message_edited" {
		t.Fatalf("expected message_edited broadcast, got %s", rec.Event)
	}
}

func TestDeleteMessagePermissions(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, _ := f.svc.Send(ctx, f.room, f.alice, "to delete", nil, false)

	if err := f.svc.Delete(ctx, msg.ID, f.bob); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("plain member deleting another's message should be denied, got %v", err)
	}

	if err := f.svc.Delete(ctx, msg.ID, f.leader); err != nil {
		t.Fatalf("moderator delete failed: %v", err)
	}
	if _, err := f.repo.GetByID(ctx, msg.ID); err == nil {
		t.Fatal("deleted message should not be retrievable")
	}
	if rec := f.bcast.last(); rec.Event != "message_deleted" {
		t.Fatalf("expected message_deleted broadcast, got %s", rec.Event)
	}
}

func TestReactToggleIsIdempotentPair(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, _ := f.svc.Send(ctx, f.room, f.alice, "react to me", nil, false)

	after, err := f.svc.React(ctx, msg.ID, f.bob, "🔥")
	if err != nil {
		t.Fatalf("React failed: %v", err)
	}
	if !after.Reactions.Has("🔥", f.bob) {
		t.Fatal("first toggle should add the reaction")
	}

	after, err = f.svc.React(ctx, msg.ID, f.bob, "🔥")
	if err != nil {
		t.Fatalf("second React failed: %v", err)
	}
	if after.Reactions.Has("🔥", f.bob) {
		t.Fatal("second toggle should remove the reaction")
	}
}

func TestPinCapAndModeratorOnly(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	var msgs []*domain.Message
	for i := 0; i <= domain.MaxPinnedPerRoom; i++ {
		msg, err := f.svc.Send(ctx, f.room, f.alice, "pin target", nil, false)
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		msgs = append(msgs, msg)
	}

	if err := f.svc.Pin(ctx, msgs[0].ID, f.alice); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("plain member pin should be denied, got %v", err)
	}

	for i := 0; i < domain.MaxPinnedPerRoom; i++ {
		if err := f.svc.Pin(ctx, msgs[i].ID, f.leader); err != nil {
			t.Fatalf("pin %d failed: %v", i+1, err)
		}
	}

	err := f.svc.Pin(ctx, msgs[domain.MaxPinnedPerRoom].ID, f.leader)
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("pin over the cap should conflict, got %v", err)
	}

	if err := f.svc.Unpin(ctx, msgs[0].ID, f.leader); err != nil {
		t.Fatalf("unpin failed: %v", err)
	}
	if err := f.svc.Pin(ctx, msgs[domain.MaxPinnedPerRoom].ID, f.leader); err != nil {
		t.Fatalf("pin after unpin failed: %v", err)
	}
}

func TestDMRoomSemantics(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	dm := domain.NewDMRoomKey(f.alice, f.bob)

	msg, err := f.svc.Send(ctx, dm, f.alice, "psst", nil, false)
	if err != nil {
		t.Fatalf("DM send failed: %v", err)
	}
	if rec := f.bcast.last(); rec.Event != "receive_dm" {
		t.Fatalf("DM send should broadcast receive_dm, got %s", rec.Event)
	}

	if _, err := f.svc.Send(ctx, dm, f.leader, "intrude", nil, false); domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("third party DM send should be denied, got %v", err)
	}

	if err := f.svc.Pin(ctx, msg.ID, f.leader); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("pinning in a DM should fail validation, got %v", err)
	}

	if err := f.svc.MarkRead(ctx, dm, f.bob); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if rec := f.bcast.last(); rec.Event != "dm_marked_read" {
		t.Fatalf("expected dm_marked_read broadcast, got %s", rec.Event)
	}
	if err := f.svc.MarkRead(ctx, f.room, f.alice); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("MarkRead on a clan room should fail validation, got %v", err)
	}
}

func TestDMRoomKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if domain.NewDMRoomKey(a, b) != domain.NewDMRoomKey(b, a) {
		t.Fatal("both participants must resolve to the same DM room")
	}
}

func TestSystemSummaryCannotBeEdited(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	if err := f.svc.SendSystemSummary(ctx, f.room, "weekly recap"); err != nil {
		t.Fatalf("SendSystemSummary failed: %v", err)
	}
	rec := f.bcast.last()
	payload := rec.Payload.(MessagePayload)
	if payload.Message.Type != domain.MessageTypeSystemSummary {
		t.Fatalf("unexpected type %s", payload.Message.Type)
	}

	_, err := f.svc.Edit(ctx, payload.Message.ID, f.alice, "tamper")
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("editing a system message should be denied, got %v", err)
	}
}

func TestRecentRequiresMembership(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.Recent(context.Background(), f.room, uuid.New(), 50)
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("non-member history read should be denied, got %v", err)
	}
}

func TestRecentReturnsNewestFirstWithAuthors(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := f.svc.Send(ctx, f.room, f.alice, content, nil, false); err != nil {
			t.Fatalf("Send %q failed: %v", content, err)
		}
	}
	if err := f.svc.SendSystemSummary(ctx, f.room, "weekly recap"); err != nil {
		t.Fatalf("SendSystemSummary failed: %v", err)
	}

	payloads, err := f.svc.Recent(ctx, f.room, f.bob, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected the limit to cap the page, got %d payloads", len(payloads))
	}
	if payloads[0].Message.Content != "weekly recap" {
		t.Fatalf("expected newest first, got %q", payloads[0].Message.Content)
	}
	if payloads[0].Author != nil {
		t.Fatal("system messages carry no author")
	}
	if payloads[1].Author == nil || payloads[1].Author.ID != f.alice {
		t.Fatalf("expected alice as author, got %+v", payloads[1].Author)
	}
}
