package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

// Server→client event names used by the message paths. Clan rooms and DM
// rooms share the same lifecycle with different names on the wire.
const (
	evtReceiveMessage  = "receive_message"
	evtMessageEdited   = "message_edited"
	evtMessageDeleted  = "message_deleted"
	evtMessageReacted  = "message_reacted"
	evtMessagePinned   = "message_pinned"
	evtMessageUnpinned = "message_unpinned"
	evtReceiveDM       = "receive_dm"
	evtDMEdited        = "dm_edited"
	evtDMDeleted       = "dm_deleted"
	evtDMMarkedRead    = "dm_marked_read"
)

// MessageService validates, persists, and broadcasts chat messages and
// their mutations. Every mutation commits before it broadcasts.
type MessageService struct {
	messages  domain.MessageRepository
	directory domain.ClanDirectory
	bcast     domain.Broadcaster
}

// NewMessageService creates a new MessageService.
func NewMessageService(
	messages domain.MessageRepository,
	directory domain.ClanDirectory,
	bcast domain.Broadcaster,
) *MessageService {
	return &MessageService{
		messages:  messages,
		directory: directory,
		bcast:     bcast,
	}
}

// AuthorizeRoom re-checks room access against the membership collaborator.
// Membership can change between join and a later write, so every mutating
// operation calls this again.
func (s *MessageService) AuthorizeRoom(ctx context.Context, userID uuid.UUID, room domain.RoomKey) error {
	if room.IsDM() {
		a, b, ok := room.DMPeers()
		if !ok {
			return domain.NewValidationError("Invalid room")
		}
		if userID != a && userID != b {
			return domain.NewAccessDeniedError("You are not part of this conversation")
		}
		return nil
	}

	clanID := room.ClanID()
	if clanID == uuid.Nil {
		return domain.NewValidationError("Invalid room")
	}
	member, err := s.directory.IsClanMember(ctx, userID, clanID)
	if err != nil {
		log.Printf("[ERR] MessageService: membership lookup failed: %v", err)
		return domain.NewInternalError()
	}
	if !member {
		return domain.NewAccessDeniedError("You are not a member of this clan")
	}
	return nil
}

// ValidateContent enforces the shared content rules. Empty content is
// allowed only when an opaque attachment payload is present.
func ValidateContent(content string, hasAttachments bool) error {
	if strings.TrimSpace(content) == "" && !hasAttachments {
		return domain.NewValidationError("Message cannot be empty")
	}
	if len(content) > domain.MaxContentLength {
		return domain.NewValidationError(fmt.Sprintf("Message exceeds %d characters", domain.MaxContentLength))
	}
	return nil
}

// MessagePayload is the broadcast shape for new messages, including the
// denormalized author and the resolved reply-to message.
type MessagePayload struct {
	Message *domain.Message     `json:"message"`
	Author  *domain.UserDisplay `json:"author"`
	ReplyTo *domain.Message     `json:"reply_to,omitempty"`
	RR      float64             `json:"static_rr,omitempty"`
}

// Send persists and broadcasts a new message in the room.
func (s *MessageService) Send(ctx context.Context, room domain.RoomKey, authorID uuid.UUID, content string, replyToID *uuid.UUID, hasAttachments bool) (*domain.Message, error) {
	if err := s.AuthorizeRoom(ctx, authorID, room); err != nil {
		return nil, err
	}
	if err := ValidateContent(content, hasAttachments); err != nil {
		return nil, err
	}

	var replyTo *domain.Message
	if replyToID != nil {
		var err error
		replyTo, err = s.messages.GetByID(ctx, *replyToID)
		if err != nil {
			return nil, domain.NewNotFoundError("Reply target not found")
		}
	}

	now := time.Now()
	msg := &domain.Message{
		ID:        uuid.New(),
		RoomKey:   room,
		AuthorID:  authorID,
		Content:   content,
		Type:      domain.MessageTypeText,
		ReplyToID: replyToID,
		Reactions: domain.Reactions{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		log.Printf("[ERR] MessageService: failed to save message: %v", err)
		return nil, domain.NewInternalError()
	}

	author, err := s.directory.GetUserDisplay(ctx, authorID)
	if err != nil {
		// Message is committed; fall back to a minimal author block.
		author = &domain.UserDisplay{ID: authorID}
	}

	s.bcast.Broadcast(room, s.eventName(room, evtReceiveMessage, evtReceiveDM), MessagePayload{
		Message: msg,
		Author:  author,
		ReplyTo: replyTo,
	})
	return msg, nil
}

// SendSystemSummary posts a system-generated summary message to a room.
// System messages have no author permissions and can never be edited.
func (s *MessageService) SendSystemSummary(ctx context.Context, room domain.RoomKey, content string) error {
	now := time.Now()
	msg := &domain.Message{
		ID:        uuid.New(),
		RoomKey:   room,
		AuthorID:  uuid.Nil,
		Content:   content,
		Type:      domain.MessageTypeSystemSummary,
		Reactions: domain.Reactions{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return fmt.Errorf("failed to save system summary: %w", err)
	}
	s.bcast.Broadcast(room, s.eventName(room, evtReceiveMessage, evtReceiveDM), MessagePayload{Message: msg})
	return nil
}

// Recent returns the latest live messages of a room, newest first, with
// denormalized authors. Serves the history view a client loads on join.
func (s *MessageService) Recent(ctx context.Context, room domain.RoomKey, userID uuid.UUID, limit int) ([]MessagePayload, error) {
	if err := s.AuthorizeRoom(ctx, userID, room); err != nil {
		return nil, err
	}
	msgs, err := s.messages.GetRecent(ctx, room, limit)
	if err != nil {
		log.Printf("[ERR] MessageService: failed to load recent messages: %v", err)
		return nil, domain.NewInternalError()
	}

	payloads := make([]MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		p := MessagePayload{Message: msg}
		if msg.AuthorID != uuid.Nil {
			author, err := s.directory.GetUserDisplay(ctx, msg.AuthorID)
			if err != nil {
				author = &domain.UserDisplay{ID: msg.AuthorID}
			}
			p.Author = author
		}
		if msg.Card != nil {
			p.RR = msg.Card.StaticRR()
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

// Edit lets the original author replace a message's content.
func (s *MessageService) Edit(ctx context.Context, messageID, editorID uuid.UUID, newContent string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, domain.NewNotFoundError("Message not found")
	}
	if err := s.AuthorizeRoom(ctx, editorID, msg.RoomKey); err != nil {
		return nil, err
	}
	if msg.Type == domain.MessageTypeSystemSummary {
		return nil, domain.NewAccessDeniedError("System messages cannot be edited")
	}
	if msg.AuthorID != editorID {
		return nil, domain.NewAccessDeniedError("Only the author can edit this message")
	}
	if err := ValidateContent(newContent, false); err != nil {
		return nil, err
	}

	msg.Content = newContent
	msg.Edited = true
	msg.UpdatedAt = time.Now()
	if err := s.messages.Update(ctx, msg); err != nil {
		log.Printf("[ERR] MessageService: failed to update message %s: %v", msg.ID, err)
		return nil, domain.NewInternalError()
	}

	s.bcast.Broadcast(msg.RoomKey, s.eventName(msg.RoomKey, evtMessageEdited, evtDMEdited), msg)
	return msg, nil
}

// Delete soft-deletes a message. Allowed for the author or, in clan
// rooms, a moderator. Clients must not assume content is retrievable
// afterwards, so the broadcast carries only the id.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID uuid.UUID) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return domain.NewNotFoundError("Message not found")
	}
	if err := s.AuthorizeRoom(ctx, requesterID, msg.RoomKey); err != nil {
		return err
	}
	if msg.AuthorID != requesterID {
		if msg.RoomKey.IsDM() {
			return domain.NewAccessDeniedError("Only the author can delete this message")
		}
		if err := s.requireModerator(ctx, requesterID); err != nil {
			return err
		}
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		log.Printf("[ERR] MessageService: failed to delete message %s: %v", messageID, err)
		return domain.NewInternalError()
	}

	s.bcast.Broadcast(msg.RoomKey, s.eventName(msg.RoomKey, evtMessageDeleted, evtDMDeleted), map[string]interface{}{
		"id": messageID,
	})
	return nil
}

// React toggles the user's membership in the emoji's reaction set and
// broadcasts the full resulting map, so late joiners and racing clients
// converge to the same view.
func (s *MessageService) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.Message, error) {
	if emoji == "" {
		return nil, domain.NewValidationError("Emoji is required")
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, domain.NewNotFoundError("Message not found")
	}
	if err := s.AuthorizeRoom(ctx, userID, msg.RoomKey); err != nil {
		return nil, err
	}

	if msg.Reactions == nil {
		msg.Reactions = domain.Reactions{}
	}
	msg.Reactions.Toggle(emoji, userID)
	msg.UpdatedAt = time.Now()
	if err := s.messages.Update(ctx, msg); err != nil {
		log.Printf("[ERR] MessageService: failed to update reactions on %s: %v", messageID, err)
		return nil, domain.NewInternalError()
	}

	s.bcast.Broadcast(msg.RoomKey, evtMessageReacted, map[string]interface{}{
		"message_id": messageID,
		"reactions":  msg.Reactions,
	})
	return msg, nil
}

// Pin marks a message as pinned. Moderator-only; a full pin list is a
// hard rejection, forcing explicit unpinning first.
func (s *MessageService) Pin(ctx context.Context, messageID, requesterID uuid.UUID) error {
	return s.setPinned(ctx, messageID, requesterID, true)
}

// Unpin clears a message's pinned flag. Moderator-only.
func (s *MessageService) Unpin(ctx context.Context, messageID, requesterID uuid.UUID) error {
	return s.setPinned(ctx, messageID, requesterID, false)
}

func (s *MessageService) setPinned(ctx context.Context, messageID, requesterID uuid.UUID, pinned bool) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return domain.NewNotFoundError("Message not found")
	}
	if msg.RoomKey.IsDM() {
		return domain.NewValidationError("Messages cannot be pinned in direct messages")
	}
	if err := s.AuthorizeRoom(ctx, requesterID, msg.RoomKey); err != nil {
		return err
	}
	if err := s.requireModerator(ctx, requesterID); err != nil {
		return err
	}
	if msg.Pinned == pinned {
		return nil
	}

	if pinned {
		count, err := s.messages.CountPinned(ctx, msg.RoomKey)
		if err != nil {
			log.Printf("[ERR] MessageService: failed to count pins: %v", err)
			return domain.NewInternalError()
		}
		if count >= domain.MaxPinnedPerRoom {
			return domain.NewConflictError(fmt.Sprintf("Pin limit of %d reached, unpin a message first", domain.MaxPinnedPerRoom))
		}
	}

	msg.Pinned = pinned
	msg.UpdatedAt = time.Now()
	if err := s.messages.Update(ctx, msg); err != nil {
		log.Printf("[ERR] MessageService: failed to update pin on %s: %v", messageID, err)
		return domain.NewInternalError()
	}

	event := evtMessagePinned
	if !pinned {
		event = evtMessageUnpinned
	}
	s.bcast.Broadcast(msg.RoomKey, event, map[string]interface{}{
		"id":     messageID,
		"pinned": pinned,
	})
	return nil
}

// MarkRead broadcasts a DM read receipt. Read state is a view like
// presence; it is not persisted here.
func (s *MessageService) MarkRead(ctx context.Context, room domain.RoomKey, readerID uuid.UUID) error {
	if !room.IsDM() {
		return domain.NewValidationError("Read receipts apply to direct messages only")
	}
	if err := s.AuthorizeRoom(ctx, readerID, room); err != nil {
		return err
	}
	s.bcast.Broadcast(room, evtDMMarkedRead, map[string]interface{}{
		"room":    room,
		"user_id": readerID,
		"at":      time.Now(),
	})
	return nil
}

func (s *MessageService) requireModerator(ctx context.Context, userID uuid.UUID) error {
	display, err := s.directory.GetUserDisplay(ctx, userID)
	if err != nil {
		log.Printf("[ERR] MessageService: display lookup failed for %s: %v", userID, err)
		return domain.NewInternalError()
	}
	if !domain.IsModerator(display.Role) {
		return domain.NewAccessDeniedError("Moderator rights required")
	}
	return nil
}

func (s *MessageService) eventName(room domain.RoomKey, clanEvent, dmEvent string) string {
	if room.IsDM() {
		return dmEvent
	}
	return clanEvent
}
