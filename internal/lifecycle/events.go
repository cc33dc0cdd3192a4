// Package lifecycle runs derived-state reactions for primary entity mutations.
//
// A mutation (message created, message content changed, user deleted) is
// described by an Event. The Dispatcher invokes every Reaction registered for
// the event's Kind, in registration order, on the caller's open transaction.
// A failing reaction aborts dispatch and its error is returned to the caller,
// which must roll the transaction back so no partial derived state commits.
package lifecycle

import (
	"time"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	// MessageCreated fires once after a message row is inserted.
	MessageCreated Kind = "message_created"
	// MessageContentChanged fires when an edit actually changed the content.
	MessageContentChanged Kind = "message_content_changed"
	// UserDeleted fires before the user row itself is removed.
	UserDeleted Kind = "user_deleted"
)

// Event is implemented by every typed payload.
type Event interface {
	Kind() Kind
}

// MessageCreatedEvent carries the identity of a newly inserted message.
type MessageCreatedEvent struct {
	MessageID  string
	SenderID   string
	ReceiverID string
	ParentID   *string
	CreatedAt  time.Time
}

func (MessageCreatedEvent) Kind() Kind { return MessageCreated }

// MessageContentChangedEvent carries the content that was replaced by an edit.
// OldContent is the value read inside the edit transaction.
type MessageContentChangedEvent struct {
	MessageID  string
	OldContent string
	NewContent string
	EditorID   string
}

func (MessageContentChangedEvent) Kind() Kind { return MessageContentChanged }

// UserDeletedEvent names the user being removed.
type UserDeletedEvent struct {
	UserID string
}

func (UserDeletedEvent) Kind() Kind { return UserDeleted }
