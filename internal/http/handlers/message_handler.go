// Message HTTP handlers.
//
//   - POST  /messages                       (send)
//   - GET   /messages/{id}                  (fetch)
//   - PATCH /messages/{id}                  (edit; history is recorded when the text changes)
//   - POST  /messages/{id}/replies          (reply)
//   - POST  /messages/{id}/read             (receiver marks read)
//   - GET   /messages/{id}/thread           (reply tree)
//   - GET   /messages/{id}/history          (edit trail)
//   - GET   /conversations/{peer_id}/messages (paginated conversation)
//
// Idempotency:
// Sending and replying honor Idempotency-Key. When a previous request with
// the same key, user and scope produced a message, that message is returned
// with `Idempotency-Replayed: true` and nothing new is created.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/http/middleware"
	"github.com/tbourn/go-messaging-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	// ReceiverID may be omitted when ParentID is set; the reply then goes to
	// the other participant of the parent message.
	ReceiverID string `json:"receiver_id" example:"3f1c2a9e-7b4d-4c1a-9e2f-0a1b2c3d4e5f"`
	// Content is normalized (line endings, NFC, trimmed) by the service.
	Content  string  `json:"content" binding:"required" example:"hi"`
	ParentID *string `json:"parent_id,omitempty"`
}

// ContentRequest carries message text for replies and edits.
type ContentRequest struct {
	Content string `json:"content" binding:"required" example:"hello"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Idempotency helpers
//

// replay serves the message recorded for this request's Idempotency-Key, if
// any. A recorded message that no longer exists is treated as unknown.
func (h *Handlers) replay(c *gin.Context, uid string) bool {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return false
	}
	ctx := c.Request.Context()
	id, status, found := h.idem.Lookup(ctx, uid, middleware.IdempotencyScope(c), key)
	if !found {
		return false
	}
	m, err := h.msgs.Get(ctx, id)
	if err != nil {
		return false
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, status, m)
	return true
}

func (h *Handlers) remember(c *gin.Context, uid, messageID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return
	}
	h.idem.Remember(c.Request.Context(), uid, middleware.IdempotencyScope(c), key, messageID, status)
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Creates a message and, in the same transaction, an unread notification for the receiver.
// @Description Supports idempotency via the Idempotency-Key header (same key, same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Sender ID"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "User or parent not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.ReceiverID == "" && req.ParentID == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiver_id or parent_id required")
		return
	}
	if h.replay(c, uid) {
		return
	}

	m, err := h.msgs.Create(c.Request.Context(), uid, req.ReceiverID, req.Content, req.ParentID)
	if err != nil {
		failService(c, err)
		return
	}
	h.remember(c, uid, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}

// PostReply godoc
// @ID          postReply
// @Summary     Reply to a message
// @Description Replies go to the parent's sender, or to its receiver when the caller wrote the parent.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Sender ID"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    string  true   "Parent message ID"  format(uuid)
// @Param       body             body    handlers.ContentRequest  true  "Reply text"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Parent not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /messages/{id}/replies [post]
func (h *Handlers) PostReply(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if h.replay(c, uid) {
		return
	}

	m, err := h.msgs.Reply(c.Request.Context(), uid, c.Param("id"), req.Content)
	if err != nil {
		failService(c, err)
		return
	}
	h.remember(c, uid, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Fetch a message
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller ID"
// @Param       id         path    string  true  "Message ID"  format(uuid)
// @Success     200  {object}  domain.Message
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	m, err := h.msgs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	if !h.canView(c, uid, m.SenderID, m.ReceiverID) {
		failService(c, services.ErrForbidden)
		return
	}
	ok(c, http.StatusOK, m)
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message
// @Description Replaces the content. When the normalized text differs, the previous text is
// @Description appended to the history and the message is flagged edited; identical text is a no-op.
// @Description Only the sender or an admin may edit.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Editor ID"
// @Param       id         path    string  true  "Message ID"  format(uuid)
// @Param       body       body    handlers.ContentRequest  true  "New text"
// @Success     200  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not permitted"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent modification"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /messages/{id} [patch]
func (h *Handlers) EditMessage(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	m, err := h.msgs.Edit(c.Request.Context(), c.Param("id"), req.Content, uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// MarkMessageRead godoc
// @ID          markMessageRead
// @Summary     Mark a message read
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Receiver ID"
// @Param       id         path    string  true  "Message ID"  format(uuid)
// @Success     200  {object}  domain.Message
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the receiver"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id}/read [post]
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	m, err := h.msgs.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// GetThread godoc
// @ID          getThread
// @Summary     Reply tree of a message
// @Description Returns the message with its replies nested, siblings oldest first.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller ID"
// @Param       id         path    string  true  "Root message ID"  format(uuid)
// @Success     200  {object}  services.ThreadNode
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id}/thread [get]
func (h *Handlers) GetThread(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	root, err := h.msgs.Get(ctx, c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	if !h.canView(c, uid, root.SenderID, root.ReceiverID) {
		failService(c, services.ErrForbidden)
		return
	}
	tree, err := h.threads.Build(ctx, root.ID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, tree)
}

// GetHistory godoc
// @ID          getHistory
// @Summary     Edit history of a message
// @Description Previous contents, oldest first.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller ID"
// @Param       id         path    string  true  "Message ID"  format(uuid)
// @Success     200  {array}   domain.MessageHistory
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id}/history [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	m, err := h.msgs.Get(ctx, c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	if !h.canView(c, uid, m.SenderID, m.ReceiverID) {
		failService(c, services.ErrForbidden)
		return
	}
	items, err := h.history.List(ctx, m.ID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// ListConversation godoc
// @ID          listConversation
// @Summary     Messages exchanged with a peer
// @Description Both directions, oldest first, paginated. Optional filters narrow by sender and by an inclusive creation time window.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID       header  string  true   "Caller ID"
// @Param       peer_id         path    string  true   "Other participant"  format(uuid)
// @Param       sender_id       query   string  false  "Only messages sent by this user"  format(uuid)
// @Param       created_after   query   string  false  "Created at or after (RFC3339)"   format(date-time)
// @Param       created_before  query   string  false  "Created at or before (RFC3339)"  format(date-time)
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed time filter"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Peer not found"
// @Router      /conversations/{peer_id}/messages [get]
func (h *Handlers) ListConversation(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	f, err := conversationFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	page, pageSize := pageParams(c)
	items, total, err := h.msgs.ListConversation(c.Request.Context(), uid, c.Param("peer_id"), f, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// conversationFilter reads sender_id, created_after and created_before.
func conversationFilter(c *gin.Context) (services.ConversationFilter, error) {
	f := services.ConversationFilter{SenderID: strings.TrimSpace(c.Query("sender_id"))}
	for _, b := range []struct {
		name string
		dst  **time.Time
	}{
		{"created_after", &f.CreatedAfter},
		{"created_before", &f.CreatedBefore},
	} {
		raw := strings.TrimSpace(c.Query(b.name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC3339 timestamp", b.name)
		}
		*b.dst = &ts
	}
	return f, nil
}
