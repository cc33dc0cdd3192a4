// Package services – CascadeCleaner
//
// CascadeCleaner reacts to UserDeleted by removing or detaching every row
// that references the user, in dependency order, on the deleting
// transaction:
//
//  0. collect the messages the user sent or received, plus every reply
//     below them (a reply cannot outlive its parent);
//  1. delete the history of those messages;
//  2. delete history rows the user authored as editor;
//  3. delete the user's notifications and those of the collected messages;
//  4. delete the collected messages, replies first;
//  5. clear the editor reference on surviving messages the user edited;
//  6. clear the edited flag on survivors left without any history.
//
// The user row itself is removed by UserService after dispatch succeeds.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/lifecycle"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// CascadeReport counts the rows touched by one cleanup.
type CascadeReport struct {
	Messages          int64
	History           int64
	Notifications     int64
	DetachedEditorRef int64
	Unedited          int64
}

// CascadeCleaner removes a deleted user's footprint.
type CascadeCleaner struct{}

// OnUserDeleted is the UserDeleted reaction.
func (c *CascadeCleaner) OnUserDeleted(ctx context.Context, tx *gorm.DB, ev lifecycle.Event) error {
	e, ok := ev.(lifecycle.UserDeletedEvent)
	if !ok {
		return fmt.Errorf("cascade: unexpected event %T", ev)
	}
	rep, err := c.Clean(ctx, tx, e.UserID)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("user_id", e.UserID).
		Int64("messages", rep.Messages).
		Int64("history", rep.History).
		Int64("notifications", rep.Notifications).
		Int64("detached", rep.DetachedEditorRef).
		Int64("unedited", rep.Unedited).
		Msg("user footprint removed")
	return nil
}

// Clean runs the cleanup steps for userID on tx.
func (c *CascadeCleaner) Clean(ctx context.Context, tx *gorm.DB, userID string) (CascadeReport, error) {
	var rep CascadeReport

	roots, err := repo.MessageIDsForParticipant(ctx, tx, userID)
	if err != nil {
		return rep, fmt.Errorf("collect messages: %w", err)
	}
	desc, err := repo.DescendantIDs(ctx, tx, roots)
	if err != nil {
		return rep, fmt.Errorf("collect replies: %w", err)
	}
	doomed := append(roots, desc...)

	n, err := repo.DeleteHistoryForMessages(ctx, tx, doomed)
	if err != nil {
		return rep, fmt.Errorf("delete message history: %w", err)
	}
	rep.History += n

	if n, err = repo.DeleteHistoryByEditor(ctx, tx, userID); err != nil {
		return rep, fmt.Errorf("delete editor history: %w", err)
	}
	rep.History += n

	if n, err = repo.DeleteNotificationsForUser(ctx, tx, userID); err != nil {
		return rep, fmt.Errorf("delete notifications: %w", err)
	}
	rep.Notifications += n
	if n, err = repo.DeleteNotificationsForMessages(ctx, tx, doomed); err != nil {
		return rep, fmt.Errorf("delete message notifications: %w", err)
	}
	rep.Notifications += n

	if rep.Messages, err = repo.DeleteMessages(ctx, tx, doomed); err != nil {
		return rep, fmt.Errorf("delete messages: %w", err)
	}

	if rep.DetachedEditorRef, err = repo.ClearMessageEditor(ctx, tx, userID); err != nil {
		return rep, fmt.Errorf("clear editor: %w", err)
	}
	if rep.Unedited, err = repo.ResetEditedWithoutHistory(ctx, tx); err != nil {
		return rep, fmt.Errorf("reset edited flag: %w", err)
	}
	return rep, nil
}
