// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the bulk primitives used by account
// removal: collecting the messages that reference a user and deleting or
// detaching dependent rows in dependency order.
//
// None of these functions open a transaction; the caller runs them inside
// one so a partially applied cleanup is never visible.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// MessageIDsForParticipant returns the IDs of every message sent or received
// by userID.
func MessageIDsForParticipant(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// DescendantIDs returns the IDs of every transitive reply below rootIDs,
// excluding rootIDs themselves, in level order. It issues one query per tree
// level rather than one per message.
func DescendantIDs(ctx context.Context, db *gorm.DB, rootIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(rootIDs))
	for _, id := range rootIDs {
		seen[id] = struct{}{}
	}

	var out []string
	frontier := rootIDs
	for len(frontier) > 0 {
		var next []string
		for _, ids := range chunk(frontier, maxInParams) {
			var part []string
			err := db.WithContext(ctx).
				Model(&domain.Message{}).
				Where("parent_id IN ?", ids).
				Order("created_at ASC, id ASC").
				Pluck("id", &part).Error
			if err != nil {
				return nil, err
			}
			for _, id := range part {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				next = append(next, id)
			}
		}
		out = append(out, next...)
		frontier = next
	}
	return out, nil
}

// DeleteHistoryForMessages removes every history row of the given messages.
func DeleteHistoryForMessages(ctx context.Context, db *gorm.DB, messageIDs []string) (int64, error) {
	var total int64
	for _, ids := range chunk(messageIDs, maxInParams) {
		res := db.WithContext(ctx).Where("message_id IN ?", ids).Delete(&domain.MessageHistory{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteHistoryByEditor removes every history row attributed to userID.
func DeleteHistoryByEditor(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("edited_by_id = ?", userID).Delete(&domain.MessageHistory{})
	return res.RowsAffected, res.Error
}

// DeleteNotificationsForUser removes every notification addressed to userID.
func DeleteNotificationsForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteNotificationsForMessages removes the notifications of the given
// messages, whoever their recipient is.
func DeleteNotificationsForMessages(ctx context.Context, db *gorm.DB, messageIDs []string) (int64, error) {
	var total int64
	for _, ids := range chunk(messageIDs, maxInParams) {
		res := db.WithContext(ctx).Where("message_id IN ?", ids).Delete(&domain.Notification{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteMessages removes the given messages. IDs are expected in level order
// (parents before replies); deletion runs in reverse so replies go first.
func DeleteMessages(ctx context.Context, db *gorm.DB, messageIDs []string) (int64, error) {
	rev := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		rev[len(messageIDs)-1-i] = id
	}
	var total int64
	for _, ids := range chunk(rev, maxInParams) {
		res := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Message{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// ClearMessageEditor nulls the editor attribution on messages last edited by
// userID, keeping the messages themselves.
func ClearMessageEditor(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("edited_by_id = ?", userID).
		Update("edited_by_id", nil)
	return res.RowsAffected, res.Error
}

// ResetEditedWithoutHistory clears the edited flag on messages that no longer
// have any history rows, keeping the flag in step with the history table after
// an editor's rows were removed.
func ResetEditedWithoutHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("edited = ? AND id NOT IN (?)", true,
			db.Model(&domain.MessageHistory{}).Select("message_id")).
		Update("edited", false)
	return res.RowsAffected, res.Error
}
