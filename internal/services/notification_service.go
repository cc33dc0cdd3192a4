// Package services – NotificationService
//
// NotificationService maintains the per-recipient notification feed. Its
// reaction to MessageCreated inserts exactly one unread notification for the
// receiver; uniqueness follows from the event firing once per create
// transaction and is backed by a unique index on message_id. The read side
// lists and acknowledges notifications on behalf of their recipient.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
	"github.com/tbourn/go-messaging-backend/internal/utils"
)

// NotificationService owns Notification rows.
type NotificationService struct {
	DB *gorm.DB
}

// OnMessageCreated is the MessageCreated reaction.
func (s *NotificationService) OnMessageCreated(ctx context.Context, tx *gorm.DB, ev lifecycle.Event) error {
	e, ok := ev.(lifecycle.MessageCreatedEvent)
	if !ok {
		return fmt.Errorf("notifications: unexpected event %T", ev)
	}
	if _, err := repo.CreateNotification(ctx, tx, e.ReceiverID, e.MessageID); err != nil {
		return err
	}
	return nil
}

// List returns a page of notifications addressed to userID, newest first,
// along with the total count.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("unread_only", unreadOnly),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Normalize(page, pageSize)

	total, err := repo.CountNotifications(ctx, s.DB, userID, unreadOnly)
	if err != nil {
		return nil, 0, wrapStore("count notifications", err)
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, userID, unreadOnly, offset, pageSize)
	if err != nil {
		return nil, 0, wrapStore("list notifications", err)
	}
	return items, total, nil
}

// Stats returns the notification count and newest CreatedAt for userID, used
// for conditional GETs.
func (s *NotificationService) Stats(ctx context.Context, userID string, unreadOnly bool) (int64, *time.Time, error) {
	n, at, err := repo.NotificationsStats(ctx, s.DB, userID, unreadOnly)
	return n, at, wrapStore("notification stats", err)
}

// MarkRead flags a notification as read. Only its recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", notificationID),
		),
	)
	defer span.End()

	var out *domain.Notification
	err := repo.WithinTx(ctx, s.DB, func(tx *gorm.DB) error {
		n, err := repo.GetNotification(ctx, tx, notificationID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotificationNotFound
		}
		if err != nil {
			return err
		}
		if n.UserID != userID {
			return ErrForbidden
		}
		if !n.Read {
			if err := repo.MarkNotificationRead(ctx, tx, n.ID); err != nil {
				return err
			}
			n.Read = true
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, wrapStore("mark notification read", err)
	}
	return out, nil
}
