// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of messages. It validates and normalizes content,
// resolves senders, receivers and parents, and performs each mutation in one
// transaction together with the lifecycle reactions it triggers, so derived
// state (notifications, edit history) commits with the message or not at all.
//
// Edits use a read-compare-write loop guarded by the message version. A lost
// version check rolls the attempt back and retries with exponential backoff;
// only a genuine content change fires MessageContentChanged.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include message/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
	"github.com/tbourn/go-messaging-backend/internal/utils"
)

// ConversationFilter narrows ListConversation by sender and creation time.
type ConversationFilter = repo.ConversationFilter

// DefaultEditMaxRetries bounds edit attempts when not configured.
const DefaultEditMaxRetries = 5

// MessageService coordinates message persistence and lifecycle dispatch.
type MessageService struct {
	DB         *gorm.DB
	Dispatcher *lifecycle.Dispatcher

	// MaxContentRunes caps normalized content length (0 = default).
	MaxContentRunes int
	// EditMaxRetries caps attempts of a conflicting edit (0 = default).
	EditMaxRetries int
	// EditBackOff builds the retry schedule for one edit; nil uses an
	// exponential backoff starting at 5ms.
	EditBackOff func() backoff.BackOff
}

// Create stores a message from senderID to receiverID. When parentID is set
// the message is a reply; an empty receiverID is then resolved from the
// parent (see replyReceiver). MessageCreated is dispatched before commit.
func (s *MessageService) Create(ctx context.Context, senderID, receiverID, content string, parentID *string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	attrs := []attribute.KeyValue{
		attribute.String("sender.id", senderID),
		attribute.String("receiver.id", receiverID),
	}
	if parentID != nil {
		attrs = append(attrs, attribute.String("parent.id", *parentID))
	}
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attrs...))
	defer span.End()

	content, err := normalizeContent(content, s.MaxContentRunes)
	if err != nil {
		return nil, err
	}

	var created *domain.Message
	err = repo.WithinTx(ctx, s.DB, func(tx *gorm.DB) error {
		if err := requireUser(ctx, tx, senderID); err != nil {
			return err
		}

		var parent *domain.Message
		if parentID != nil {
			p, err := repo.GetMessage(ctx, tx, *parentID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrParentNotFound
			}
			if err != nil {
				return err
			}
			parent = p
			if receiverID == "" {
				receiverID = replyReceiver(parent, senderID)
			}
		}
		if receiverID == "" {
			return ErrUserNotFound
		}
		if err := requireUser(ctx, tx, receiverID); err != nil {
			return err
		}

		m, err := repo.CreateMessage(ctx, tx, senderID, receiverID, content, parent)
		if err != nil {
			return err
		}
		if err := s.Dispatcher.Dispatch(ctx, tx, lifecycle.MessageCreatedEvent{
			MessageID:  m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			ParentID:   m.ParentID,
			CreatedAt:  m.CreatedAt,
		}); err != nil {
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, wrapStore("create message", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("message_id", created.ID).
		Str("sender_id", created.SenderID).
		Str("receiver_id", created.ReceiverID).
		Msg("message created")
	return created, nil
}

// Reply answers parentID on behalf of senderID. The receiver is derived from
// the parent message.
func (s *MessageService) Reply(ctx context.Context, senderID, parentID, content string) (*domain.Message, error) {
	return s.Create(ctx, senderID, "", content, &parentID)
}

// replyReceiver picks who a reply is addressed to: the immediate parent's
// sender, or the parent's receiver when the replier wrote the parent.
func replyReceiver(parent *domain.Message, senderID string) string {
	if parent.SenderID == senderID {
		return parent.ReceiverID
	}
	return parent.SenderID
}

// Edit replaces the content of messageID on behalf of editorID. The sender
// and admins may edit. Resubmitting the current content is a no-op: no
// history row, no edited flag change. On a lost version check the attempt is
// retried under a fresh read; after EditMaxRetries it fails with ErrConflict.
func (s *MessageService) Edit(ctx context.Context, messageID, newContent, editorID string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Edit",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("editor.id", editorID),
		),
	)
	defer span.End()

	content, err := normalizeContent(newContent, s.MaxContentRunes)
	if err != nil {
		return nil, err
	}

	attempts := 0
	op := func() (*domain.Message, error) {
		attempts++
		m, err := s.editOnce(ctx, messageID, content, editorID)
		if errors.Is(err, repo.ErrConflict) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return m, nil
	}

	maxTries := s.EditMaxRetries
	if maxTries <= 0 {
		maxTries = DefaultEditMaxRetries
	}
	m, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.editBackOff()),
		backoff.WithMaxTries(uint(maxTries)),
	)
	span.SetAttributes(attribute.Int("edit.attempts", attempts))
	if errors.Is(err, repo.ErrConflict) {
		zerolog.Ctx(ctx).Warn().
			Str("message_id", messageID).
			Int("attempts", attempts).
			Msg("edit gave up after version conflicts")
		return nil, ErrConflict
	}
	if err != nil {
		return nil, wrapStore("edit message", err)
	}
	return m, nil
}

func (s *MessageService) editBackOff() backoff.BackOff {
	if s.EditBackOff != nil {
		return s.EditBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}

// editOnce is one read-compare-write attempt in its own transaction.
func (s *MessageService) editOnce(ctx context.Context, messageID, content, editorID string) (*domain.Message, error) {
	var out *domain.Message
	err := repo.WithinTx(ctx, s.DB, func(tx *gorm.DB) error {
		m, err := repo.GetMessage(ctx, tx, messageID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}

		editor, err := repo.GetUser(ctx, tx, editorID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if m.SenderID != editor.ID && !editor.IsAdmin() {
			return ErrForbidden
		}

		if m.Content == content {
			out = m
			return nil
		}

		if err := repo.UpdateMessageContentIfUnchanged(ctx, tx, m.ID, m.Version, content, editor.ID); err != nil {
			return err
		}
		if err := s.Dispatcher.Dispatch(ctx, tx, lifecycle.MessageContentChangedEvent{
			MessageID:  m.ID,
			OldContent: m.Content,
			NewContent: content,
			EditorID:   editor.ID,
		}); err != nil {
			return err
		}
		out, err = repo.GetMessage(ctx, tx, m.ID)
		return err
	})
	return out, err
}

// MarkRead flags messageID as read. Only its receiver may do so.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	var out *domain.Message
	err := repo.WithinTx(ctx, s.DB, func(tx *gorm.DB) error {
		m, err := repo.GetMessage(ctx, tx, messageID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if m.ReceiverID != userID {
			return ErrForbidden
		}
		if !m.Read {
			if err := repo.MarkMessageRead(ctx, tx, m.ID); err != nil {
				return err
			}
			m.Read = true
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, wrapStore("mark message read", err)
	}
	return out, nil
}

// Get fetches a message by ID.
func (s *MessageService) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, wrapStore("get message", err)
	}
	return m, nil
}

// ListConversation returns a page of messages exchanged between userID and
// peerID that match f, oldest first, with the total count.
func (s *MessageService) ListConversation(ctx context.Context, userID, peerID string, f ConversationFilter, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "ListConversation",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("peer.id", peerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
			attribute.Bool("filter.sender", f.SenderID != ""),
			attribute.Bool("filter.range", f.CreatedAfter != nil || f.CreatedBefore != nil),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Normalize(page, pageSize)

	if err := requireUser(ctx, s.DB, peerID); err != nil {
		return nil, 0, wrapStore("get peer", err)
	}

	total, err := repo.CountConversation(ctx, s.DB, userID, peerID, f)
	if err != nil {
		return nil, 0, wrapStore("count conversation", err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListConversationPage(ctx, s.DB, userID, peerID, f, offset, pageSize)
	if err != nil {
		return nil, 0, wrapStore("list conversation", err)
	}
	return items, total, nil
}

// requireUser maps a missing user row to ErrUserNotFound.
func requireUser(ctx context.Context, db *gorm.DB, id string) error {
	if id == "" {
		return ErrUserNotFound
	}
	_, err := repo.GetUser(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
