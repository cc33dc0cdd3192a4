// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MessageHistory model. History rows are append-only: there is no update
// function, and rows only disappear through cascade cleanup.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// CreateHistory appends a snapshot of oldContent for messageID. editorID may
// be empty when the editor is unknown.
func CreateHistory(ctx context.Context, db *gorm.DB, messageID, oldContent, editorID string) (*domain.MessageHistory, error) {
	h := &domain.MessageHistory{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		OldContent: oldContent,
		EditedAt:   time.Now().UTC(),
	}
	if editorID != "" {
		h.EditedByID = &editorID
	}
	if err := db.WithContext(ctx).Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}

// ListHistory returns the edit trail of messageID, oldest first.
func ListHistory(ctx context.Context, db *gorm.DB, messageID string) ([]domain.MessageHistory, error) {
	out := []domain.MessageHistory{}
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("edited_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountHistory returns the number of history rows recorded for messageID.
func CountHistory(ctx context.Context, db *gorm.DB, messageID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MessageHistory{}).
		Where("message_id = ?", messageID).
		Count(&total).Error
	return total, err
}
