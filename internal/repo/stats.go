// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// latest counts the rows matched by q and returns the greatest value of the
// given timestamp column, or nil when q matches nothing.
func latest(q *gorm.DB, column string) (count int64, maxAt *time.Time, err error) {
	// Each chained call below must start from q's conditions, not from the
	// statement the previous call mutated.
	q = q.Session(&gorm.Session{})
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest timestamp (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
		CreatedAt time.Time
	}
	if err = q.Select(column).Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	if column == "created_at" {
		return count, &row.CreatedAt, nil
	}
	return count, &row.UpdatedAt, nil
}

// UnreadStats returns the number of unread messages received by userID and
// the greatest UpdatedAt among them.
func UnreadStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("receiver_id = ? AND is_read = ?", userID, false)
	return latest(q, "updated_at")
}

// NotificationsStats returns the number of notifications for userID (all or
// unread only) and the greatest CreatedAt among them. The read flag is folded
// into the ETag by the caller through the unread count.
func NotificationsStats(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Scopes(notificationsFor(userID, unreadOnly))
	return latest(q, "created_at")
}
