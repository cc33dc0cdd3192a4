package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// Every successful create leaves exactly one notification for its message,
// addressed to the receiver.
func TestProperty_NotificationPerMessage(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "alice", "")
	bob := mkUser(t, e, "bob", "")

	var ids []string
	for i := 0; i < 10; i++ {
		from, to := alice.ID, bob.ID
		if i%2 == 1 {
			from, to = to, from
		}
		var parent *string
		if i > 0 {
			parent = &ids[i-1]
		}
		m, err := e.Messages.Create(ctx, from, to, "msg", parent)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	// A rejected create leaves nothing behind.
	_, err := e.Messages.Create(ctx, alice.ID, "ghost", "msg", nil)
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.EqualValues(t, len(ids), count(t, db, &domain.Notification{}, "1 = 1"))

	for _, id := range ids {
		var notes []domain.Notification
		require.NoError(t, db.Where("message_id = ?", id).Find(&notes).Error)
		require.Len(t, notes, 1, "message %s", id)
		var m domain.Message
		require.NoError(t, db.First(&m, "id = ?", id).Error)
		assert.Equal(t, m.ReceiverID, notes[0].UserID)
		assert.False(t, notes[0].Read)
	}
}

// A real edit appends one history row holding the previous content and the
// editor, and flags the message.
func TestProperty_EditHistoryCorrectness(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "alice", "")
	bob := mkUser(t, e, "bob", "")
	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "before", nil)
	require.NoError(t, err)

	got, err := e.Messages.Edit(ctx, m.ID, "after", alice.ID)
	require.NoError(t, err)
	assert.True(t, got.Edited)
	assert.Equal(t, "after", got.Content)

	var hist []domain.MessageHistory
	require.NoError(t, db.Where("message_id = ?", m.ID).Find(&hist).Error)
	require.Len(t, hist, 1)
	assert.Equal(t, "before", hist[0].OldContent)
	require.NotNil(t, hist[0].EditedByID)
	assert.Equal(t, alice.ID, *hist[0].EditedByID)
}

// Resubmitting the current content (modulo normalization) records nothing.
func TestProperty_NoOpOnIdenticalContent(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "alice", "")
	bob := mkUser(t, e, "bob", "")
	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "same", nil)
	require.NoError(t, err)

	for _, resubmit := range []string{"same", "  same  ", "same\r\n"} {
		got, err := e.Messages.Edit(ctx, m.ID, resubmit, alice.ID)
		require.NoError(t, err)
		assert.False(t, got.Edited)
		assert.Equal(t, int64(1), got.Version)
	}
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id = ?", m.ID))
}

// After a user is deleted nothing references them, surviving messages have
// their editor reference cleared, and edited holds iff history remains.
func TestProperty_CascadeCompleteness(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	u := mkUser(t, e, "doomed", domain.RoleAdmin)
	bob := mkUser(t, e, "bob", "")
	carol := mkUser(t, e, "carol", "")

	sent, _ := e.Messages.Create(ctx, u.ID, bob.ID, "from u", nil)
	recv, _ := e.Messages.Create(ctx, carol.ID, u.ID, "to u", nil)
	_, err := e.Messages.Edit(ctx, sent.ID, "from u v2", u.ID)
	require.NoError(t, err)
	_, err = e.Messages.Edit(ctx, recv.ID, "to u v2", carol.ID)
	require.NoError(t, err)

	// Bob answers u's message; carol answers bob. Both hang below u's message.
	r1, err := e.Messages.Reply(ctx, bob.ID, sent.ID, "re")
	require.NoError(t, err)
	r2, err := e.Messages.Create(ctx, carol.ID, bob.ID, "re re", &r1.ID)
	require.NoError(t, err)
	_, err = e.Messages.Edit(ctx, r2.ID, "re re v2", carol.ID)
	require.NoError(t, err)

	// u moderates a conversation they are not part of, once as the only
	// editor and once after bob's own edit.
	other, _ := e.Messages.Create(ctx, bob.ID, carol.ID, "bob to carol", nil)
	_, err = e.Messages.Edit(ctx, other.ID, "moderated", u.ID)
	require.NoError(t, err)
	shared, _ := e.Messages.Create(ctx, bob.ID, carol.ID, "draft", nil)
	_, err = e.Messages.Edit(ctx, shared.ID, "draft v2", bob.ID)
	require.NoError(t, err)
	_, err = e.Messages.Edit(ctx, shared.ID, "draft v3", u.ID)
	require.NoError(t, err)

	require.NoError(t, e.Users.Delete(ctx, u.ID, u.ID))

	assert.Zero(t, count(t, db, &domain.User{}, "id = ?", u.ID))
	assert.Zero(t, count(t, db, &domain.Message{}, "sender_id = ? OR receiver_id = ?", u.ID, u.ID))
	assert.Zero(t, count(t, db, &domain.Message{}, "edited_by_id = ?", u.ID))
	assert.Zero(t, count(t, db, &domain.Notification{}, "user_id = ?", u.ID))
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "edited_by_id = ?", u.ID))

	// Replies below u's message went with it, along with their derived rows.
	for _, id := range []string{sent.ID, recv.ID, r1.ID, r2.ID} {
		assert.Zero(t, count(t, db, &domain.Message{}, "id = ?", id), "message %s", id)
		assert.Zero(t, count(t, db, &domain.Notification{}, "message_id = ?", id))
		assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id = ?", id))
	}

	// No dangling references anywhere.
	assert.Zero(t, count(t, db, &domain.Notification{}, "message_id NOT IN (SELECT id FROM messages)"))
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id NOT IN (SELECT id FROM messages)"))
	assert.Zero(t, count(t, db, &domain.Message{}, "parent_id IS NOT NULL AND parent_id NOT IN (SELECT id FROM messages)"))

	survivor, err := e.Messages.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, survivor.EditedByID)
	assert.Equal(t, "moderated", survivor.Content)
	assert.Equal(t, int64(1), count(t, db, &domain.Notification{}, "message_id = ?", other.ID))

	// The edited flag follows the remaining history on every survivor.
	assert.False(t, survivor.Edited)
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id = ?", other.ID))
	kept, err := e.Messages.Get(ctx, shared.ID)
	require.NoError(t, err)
	assert.True(t, kept.Edited)
	assert.Equal(t, int64(1), count(t, db, &domain.MessageHistory{}, "message_id = ?", shared.ID))
	assert.Zero(t, count(t, db, &domain.Message{}, "edited = ? AND id NOT IN (SELECT message_id FROM message_history)", true))
}

// Replies come back oldest first at every level.
func TestProperty_ThreadOrdering(t *testing.T) {
	_, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "alice", "")
	bob := mkUser(t, e, "bob", "")

	root, _ := e.Messages.Create(ctx, alice.ID, bob.ID, "root", nil)
	c1, _ := e.Messages.Reply(ctx, bob.ID, root.ID, "t1")
	c2, _ := e.Messages.Reply(ctx, bob.ID, root.ID, "t2")
	g1, _ := e.Messages.Reply(ctx, alice.ID, c2.ID, "t3")
	g2, _ := e.Messages.Reply(ctx, alice.ID, c2.ID, "t4")

	tree, err := e.Threads.Build(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, tree.Replies, 2)
	assert.Equal(t, c1.ID, tree.Replies[0].ID)
	assert.Equal(t, c2.ID, tree.Replies[1].ID)
	assert.Empty(t, tree.Replies[0].Replies)
	require.Len(t, tree.Replies[1].Replies, 2)
	assert.Equal(t, g1.ID, tree.Replies[1].Replies[0].ID)
	assert.Equal(t, g2.ID, tree.Replies[1].Replies[1].ID)

	var walk func(n *ThreadNode)
	walk = func(n *ThreadNode) {
		for i := 1; i < len(n.Replies); i++ {
			assert.False(t, n.Replies[i].CreatedAt.Before(n.Replies[i-1].CreatedAt))
		}
		for _, c := range n.Replies {
			assert.True(t, c.CreatedAt.After(n.CreatedAt), "reply must be newer than parent")
			walk(c)
		}
	}
	walk(tree)
}

// Alice and Bob: send, edit, edit again with the same text.
func TestScenario_SendAndEdit(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "Alice", "")
	bob := mkUser(t, e, "Bob", "")

	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "hi", nil)
	require.NoError(t, err)

	notes, total, err := e.Notifications.List(ctx, bob.ID, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, notes, 1)
	assert.Equal(t, m.ID, notes[0].MessageID)
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "1 = 1"))

	_, err = e.Messages.Edit(ctx, m.ID, "hello", alice.ID)
	require.NoError(t, err)
	hist, err := e.History.List(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hi", hist[0].OldContent)

	_, err = e.Messages.Edit(ctx, m.ID, "hello", alice.ID)
	require.NoError(t, err)
	hist, err = e.History.List(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

// Bob replies to Alice and the thread shows it.
func TestScenario_ReplyThread(t *testing.T) {
	_, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "Alice", "")
	bob := mkUser(t, e, "Bob", "")

	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "hi", nil)
	require.NoError(t, err)
	reply, err := e.Messages.Reply(ctx, bob.ID, m.ID, "hey")
	require.NoError(t, err)

	tree, err := e.Threads.Build(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, tree.ID)
	require.Len(t, tree.Replies, 1)
	assert.Equal(t, reply.ID, tree.Replies[0].ID)
	assert.Equal(t, bob.ID, tree.Replies[0].SenderID)
	assert.Equal(t, "hey", tree.Replies[0].Content)
	assert.Empty(t, tree.Replies[0].Replies)
}

// Deleting Alice removes their conversations but keeps messages they only
// edited, with the editor reference cleared and the edited flag dropped once
// no history remains.
func TestScenario_DeleteUser(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "Alice", domain.RoleAdmin)
	bob := mkUser(t, e, "Bob", "")
	carol := mkUser(t, e, "Carol", "")

	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "hi", nil)
	require.NoError(t, err)
	_, err = e.Messages.Edit(ctx, m.ID, "hello", alice.ID)
	require.NoError(t, err)
	reply, err := e.Messages.Reply(ctx, bob.ID, m.ID, "hey")
	require.NoError(t, err)

	edited, err := e.Messages.Create(ctx, carol.ID, bob.ID, "carol says", nil)
	require.NoError(t, err)
	_, err = e.Messages.Edit(ctx, edited.ID, "carol said", alice.ID)
	require.NoError(t, err)

	require.NoError(t, e.Users.Delete(ctx, alice.ID, alice.ID))

	for _, id := range []string{m.ID, reply.ID} {
		_, err := e.Messages.Get(ctx, id)
		assert.ErrorIs(t, err, ErrMessageNotFound)
		assert.Zero(t, count(t, db, &domain.Notification{}, "message_id = ?", id))
		assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id = ?", id))
	}

	survivor, err := e.Messages.Get(ctx, edited.ID)
	require.NoError(t, err)
	assert.Nil(t, survivor.EditedByID)
	assert.Equal(t, "carol said", survivor.Content)
	assert.False(t, survivor.Edited, "alice was the only editor")
	assert.Zero(t, count(t, db, &domain.MessageHistory{}, "message_id = ?", edited.ID))

	_, err = e.Users.Get(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// A failing cleanup leaves the user and every dependent row in place.
func TestScenario_DeleteUserIsAtomic(t *testing.T) {
	db, e := newEngineDB(t, EngineConfig{})
	ctx := context.Background()
	alice := mkUser(t, e, "Alice", "")
	bob := mkUser(t, e, "Bob", "")
	m, err := e.Messages.Create(ctx, alice.ID, bob.ID, "hi", nil)
	require.NoError(t, err)

	// Make the final user-row delete fail after the cascade ran.
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_user_delete", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "users" {
			_ = tx.AddError(assert.AnError)
		}
	}))

	err = e.Users.Delete(ctx, alice.ID, alice.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = e.Users.Get(ctx, alice.ID)
	assert.NoError(t, err)
	_, err = e.Messages.Get(ctx, m.ID)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count(t, db, &domain.Notification{}, "message_id = ?", m.ID))
}
