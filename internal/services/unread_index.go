package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// UnreadIndex answers "which messages has this user not read yet". It owns
// no state: it projects Message rows by receiver and read flag.
type UnreadIndex struct {
	DB *gorm.DB
}

// For returns the unread messages received by userID, oldest first. An
// unknown user simply has none.
func (u *UnreadIndex) For(ctx context.Context, userID string) ([]domain.MessageSummary, error) {
	ctx, span := otel.Tracer("services/UnreadIndex").Start(ctx, "For",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	items, err := repo.ListUnread(ctx, u.DB, userID)
	if err != nil {
		return nil, wrapStore("list unread", err)
	}
	span.SetAttributes(attribute.Int("unread.count", len(items)))
	return items, nil
}

// Stats returns the unread count and newest UpdatedAt for userID.
func (u *UnreadIndex) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, at, err := repo.UnreadStats(ctx, u.DB, userID)
	return n, at, wrapStore("unread stats", err)
}
