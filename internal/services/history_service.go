// Package services – HistoryService
//
// HistoryService keeps the append-only edit trail of each message. Its
// reaction to MessageContentChanged snapshots the replaced content with the
// editor's identity and flags the message as edited. Deciding whether an edit
// is a real change happens before dispatch, in MessageService.Edit.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// HistoryService owns MessageHistory rows.
type HistoryService struct {
	DB *gorm.DB
}

// OnContentChanged is the MessageContentChanged reaction.
func (s *HistoryService) OnContentChanged(ctx context.Context, tx *gorm.DB, ev lifecycle.Event) error {
	e, ok := ev.(lifecycle.MessageContentChangedEvent)
	if !ok {
		return fmt.Errorf("history: unexpected event %T", ev)
	}
	if _, err := repo.CreateHistory(ctx, tx, e.MessageID, e.OldContent, e.EditorID); err != nil {
		return err
	}
	return repo.MarkMessageEdited(ctx, tx, e.MessageID)
}

// List returns the edit trail of messageID, oldest first.
func (s *HistoryService) List(ctx context.Context, messageID string) ([]domain.MessageHistory, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("message.id", messageID)),
	)
	defer span.End()

	if _, err := repo.GetMessage(ctx, s.DB, messageID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, wrapStore("get message", err)
	}
	items, err := repo.ListHistory(ctx, s.DB, messageID)
	if err != nil {
		return nil, wrapStore("list history", err)
	}
	return items, nil
}
