// Inbox HTTP handlers: what is waiting for the caller.
//
//   - GET  /unread                    (unread messages, ETag support)
//   - GET  /notifications             (paginated, ETag support, ?unread=true)
//   - POST /notifications/{id}/read   (recipient marks read)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// UnreadResponse lists unread messages, oldest first.
type UnreadResponse struct {
	Messages []domain.MessageSummary `json:"messages"`
	Count    int                     `json:"count"`
}

// ListNotificationsResponse wraps a page of notifications.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// GetUnread godoc
// @ID          getUnread
// @Summary     Unread messages
// @Description Messages addressed to the caller and not yet read. Supports weak ETag via If-None-Match.
// @Tags        Inbox
// @Produce     json
// @Param       X-User-ID      header  string  true   "Caller ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.UnreadResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /unread [get]
func (h *Handlers) GetUnread(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, newest, err := h.unread.Stats(ctx, uid); err == nil {
		if notModified(c, "unread", uid, count, newest) {
			return
		}
	}

	items, err := h.unread.For(ctx, uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Messages: items, Count: len(items)})
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     Notifications (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Inbox
// @Produce     json
// @Param       X-User-ID      header  string  true   "Caller ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       unread         query   bool    false  "Only unread notifications"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	page, pageSize := pageParams(c)

	if h.notificationsNotModified(c, uid, unreadOnly, page, pageSize) {
		return
	}

	items, total, err := h.notes.List(ctx, uid, unreadOnly, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Tags        Inbox
// @Produce     json
// @Param       X-User-ID  header  string  true  "Recipient ID"
// @Param       id         path    string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  domain.Notification
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the recipient"
// @Failure     404  {object}  handlers.ErrorResponse  "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid, found := caller(c)
	if !found {
		return
	}
	n, err := h.notes.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// notificationsNotModified handles If-None-Match for a notifications page.
// Reading a notification changes neither the total nor the newest CreatedAt,
// so the unread count is folded into the key of the full listing.
func (h *Handlers) notificationsNotModified(c *gin.Context, uid string, unreadOnly bool, page, pageSize int) bool {
	ctx := c.Request.Context()
	count, newest, err := h.notes.Stats(ctx, uid, unreadOnly)
	if err != nil {
		return false
	}
	kind := "notifications-unread"
	if !unreadOnly {
		unread, _, err := h.notes.Stats(ctx, uid, true)
		if err != nil {
			return false
		}
		kind = "notifications-" + strconv.FormatInt(unread, 10)
	}
	owner := uid + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
	return notModified(c, kind, owner, count, newest)
}
