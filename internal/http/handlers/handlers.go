// Package handlers exposes the messaging engine over HTTP.
//
// Handlers are transport-thin: they resolve the caller, bind and check
// input shape, call a service, and translate the result (or a service
// sentinel) into a response. Content normalization, permissions and every
// lifecycle side effect live in the services.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/http/middleware"
	"github.com/tbourn/go-messaging-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// UserService manages accounts.
type UserService interface {
	Create(ctx context.Context, displayName, role string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Delete(ctx context.Context, actorID, userID string) error
}

// MessageService sends, edits and reads messages.
type MessageService interface {
	Create(ctx context.Context, senderID, receiverID, content string, parentID *string) (*domain.Message, error)
	Reply(ctx context.Context, senderID, parentID, content string) (*domain.Message, error)
	Edit(ctx context.Context, messageID, newContent, editorID string) (*domain.Message, error)
	MarkRead(ctx context.Context, userID, messageID string) (*domain.Message, error)
	Get(ctx context.Context, messageID string) (*domain.Message, error)
	ListConversation(ctx context.Context, userID, peerID string, f services.ConversationFilter, page, pageSize int) ([]domain.Message, int64, error)
}

// NotificationService serves a user's notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error)
	Stats(ctx context.Context, userID string, unreadOnly bool) (int64, *time.Time, error)
	MarkRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
}

// HistoryService lists the edit trail of a message.
type HistoryService interface {
	List(ctx context.Context, messageID string) ([]domain.MessageHistory, error)
}

// ThreadService builds reply trees.
type ThreadService interface {
	Build(ctx context.Context, rootID string) (*services.ThreadNode, error)
}

// UnreadService lists unread messages.
type UnreadService interface {
	For(ctx context.Context, userID string) ([]domain.MessageSummary, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// IdempotencyStore records which message a (user, scope, key) produced.
// Failures are best effort: a lost record only means a retry creates a new
// message.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (messageID string, status int, found bool)
	Remember(ctx context.Context, userID, scope, key, messageID string, status int)
}

// Deps bundles the services the handlers depend on. Idempotency may be nil.
type Deps struct {
	Users         UserService
	Messages      MessageService
	Notifications NotificationService
	History       HistoryService
	Threads       ThreadService
	Unread        UnreadService
	Idempotency   IdempotencyStore
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	users   UserService
	msgs    MessageService
	notes   NotificationService
	history HistoryService
	threads ThreadService
	unread  UnreadService
	idem    IdempotencyStore
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		users:   d.Users,
		msgs:    d.Messages,
		notes:   d.Notifications,
		history: d.History,
		threads: d.Threads,
		unread:  d.Unread,
		idem:    d.Idempotency,
	}
}

// caller returns the authenticated user id, answering 401 when absent.
func caller(c *gin.Context) (string, bool) {
	uid, found := middleware.UserID(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing "+middleware.HeaderUserID+" header")
		return "", false
	}
	return uid, true
}

// canView reports whether uid may read a message between senderID and
// receiverID: participants and admins can.
func (h *Handlers) canView(c *gin.Context, uid, senderID, receiverID string) bool {
	if uid == senderID || uid == receiverID {
		return true
	}
	u, err := h.users.Get(c.Request.Context(), uid)
	return err == nil && u.IsAdmin()
}
