// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// CreateMessage inserts a new message row at version 1. When parent is not
// nil the message becomes a reply, and its CreatedAt is forced strictly after
// the parent's so ancestor chains stay finite and time-ordered.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID, content string, parent *domain.Message) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if parent != nil {
		pid := parent.ID
		m.ParentID = &pid
		if !m.CreatedAt.After(parent.CreatedAt) {
			m.CreatedAt = parent.CreatedAt.Add(time.Microsecond)
			m.UpdatedAt = m.CreatedAt
		}
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageContentIfUnchanged replaces the content of message id only if
// its version still equals expectedVersion, bumping the version and recording
// the editor. It returns ErrConflict when the row changed (or vanished) since
// the caller read it.
func UpdateMessageContentIfUnchanged(ctx context.Context, db *gorm.DB, id string, expectedVersion int64, content, editorID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"content":      content,
			"edited_by_id": editorID,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkMessageEdited sets the edited flag on a message.
func MarkMessageEdited(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Update("edited", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMessageRead flags a message as read by its receiver.
func MarkMessageRead(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChildren returns the direct replies of every message in parentIDs,
// ordered (CreatedAt ASC, ID ASC). Parent IDs are split into bounded IN
// lists; all children of one parent always come from the same query, so the
// per-parent order is preserved.
func ListChildren(ctx context.Context, db *gorm.DB, parentIDs []string) ([]domain.Message, error) {
	var out []domain.Message
	for _, ids := range chunk(parentIDs, maxInParams) {
		var part []domain.Message
		err := db.WithContext(ctx).
			Where("parent_id IN ?", ids).
			Order("created_at ASC, id ASC").
			Find(&part).Error
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// ListUnread returns the unread messages received by userID, oldest first,
// projected to the summary columns only.
func ListUnread(ctx context.Context, db *gorm.DB, userID string) ([]domain.MessageSummary, error) {
	out := []domain.MessageSummary{}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("id", "sender_id", "content", "created_at").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Order("created_at ASC, id ASC").
		Scan(&out).Error
	return out, err
}

// conversation scopes a query to messages exchanged between a and b.
func conversation(a, b string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	}
}

// ConversationFilter narrows a conversation listing. Zero fields match
// everything; time bounds are inclusive.
type ConversationFilter struct {
	SenderID      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (f ConversationFilter) scope(q *gorm.DB) *gorm.DB {
	if f.SenderID != "" {
		q = q.Where("sender_id = ?", f.SenderID)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", f.CreatedBefore.UTC())
	}
	return q
}

// CountConversation returns the number of messages exchanged between a and b
// that match f.
func CountConversation(ctx context.Context, db *gorm.DB, a, b string, f ConversationFilter) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Scopes(conversation(a, b), f.scope).
		Count(&total).Error
	return total, err
}

// ListConversationPage returns a page of messages exchanged between a and b
// that match f, ordered (CreatedAt ASC, ID ASC).
func ListConversationPage(ctx context.Context, db *gorm.DB, a, b string, f ConversationFilter, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Scopes(conversation(a, b), f.scope).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
