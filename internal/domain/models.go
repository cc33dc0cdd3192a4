// Package domain defines the persistence models for users, messages,
// notifications, and message edit history. These types are mapped with GORM
// and form the core data layer of the messaging application.
package domain

import (
	"time"
)

// User roles. Admins may edit any message and delete any account.
const (
	RoleGuest = "guest"
	RoleHost  = "host"
	RoleAdmin = "admin"
)

// User is an account that sends and receives messages.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), immutable once created.
//   - DisplayName: human-readable name shown to other users.
//   - Role: guest, host or admin (enforced by DB constraint).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	Role        string    `json:"role"         gorm:"type:varchar(16);not null;default:'guest';check:role IN ('guest','host','admin')"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Message is a single direct message from a sender to a receiver. A message
// may reply to another message through ParentID, which forms a reply tree
// whose root has no parent.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SenderID / ReceiverID: participants; messages are removed with either.
//   - Content: current text; previous values live in MessageHistory.
//   - ParentID: optional parent message (reply relation). A reply is always
//     strictly newer than its parent.
//   - Edited: true iff at least one MessageHistory row exists.
//   - EditedByID: last editor; nulled when that user is deleted.
//   - Read: receiver has read the message.
//   - Version: optimistic concurrency counter, bumped on every content update.
type Message struct {
	ID         string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	SenderID   string    `json:"sender_id"              gorm:"type:char(36);not null;index:idx_msgs_sender"`
	ReceiverID string    `json:"receiver_id"            gorm:"type:char(36);not null;index:idx_msgs_receiver_read,priority:1"`
	Content    string    `json:"content"                gorm:"type:text;not null"`
	ParentID   *string   `json:"parent_id,omitempty"    gorm:"type:char(36);index:idx_msgs_parent,priority:1"`
	Edited     bool      `json:"edited"                 gorm:"not null;default:false"`
	EditedByID *string   `json:"edited_by_id,omitempty" gorm:"type:char(36);index"`
	Read       bool      `json:"read"                   gorm:"column:is_read;not null;default:false;index:idx_msgs_receiver_read,priority:2"`
	Version    int64     `json:"version"                gorm:"not null;default:1"`
	CreatedAt  time.Time `json:"created_at"             gorm:"index:idx_msgs_parent,priority:2"`
	UpdatedAt  time.Time `json:"updated_at"`

	Sender   *User    `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Receiver *User    `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	EditedBy *User    `json:"-" gorm:"foreignKey:EditedByID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Parent   *Message `json:"-" gorm:"foreignKey:ParentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification tells a recipient that a message arrived. Exactly one
// notification exists per message; only Read changes after creation.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_notif_user,priority:1"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_notif_message"`
	Read      bool      `json:"read"       gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notif_user,priority:2"`

	User    *User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Message *Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// MessageHistory is an append-only snapshot of a message's content taken
// right before an accepted edit.
type MessageHistory struct {
	ID         string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	MessageID  string    `json:"message_id"             gorm:"type:char(36);not null;index:idx_history_msg,priority:1"`
	OldContent string    `json:"old_content"            gorm:"type:text;not null"`
	EditedAt   time.Time `json:"edited_at"              gorm:"not null;index:idx_history_msg,priority:2"`
	EditedByID *string   `json:"edited_by_id,omitempty" gorm:"type:char(36);index"`

	Message  *Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	EditedBy *User    `json:"-" gorm:"foreignKey:EditedByID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for MessageHistory.
func (MessageHistory) TableName() string { return "message_history" }

// MessageSummary is the field-limited projection served by the unread index.
type MessageSummary struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
