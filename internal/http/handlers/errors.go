// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on the human-readable message. Every error response carries the
// status, one of these codes and the request id:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "message was modified concurrently"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeInternal         = "internal_error"
)

// failService maps a service error onto the error envelope. Messages come
// from the sentinels only; store causes and message content are never echoed
// back to the client.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrParentNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, sentinelMessage(err))
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, services.ErrConflict.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, services.ErrForbidden.Error())
	case errors.Is(err, services.ErrInvalidContent):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidContent.Error())
	case errors.Is(err, services.ErrInvalidUser):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidUser.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		_ = c.Error(err)
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "storage temporarily unavailable")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// sentinelMessage returns the text of the not-found sentinel matched by err.
func sentinelMessage(err error) string {
	for _, s := range []error{
		services.ErrUserNotFound,
		services.ErrMessageNotFound,
		services.ErrParentNotFound,
		services.ErrNotificationNotFound,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "resource not found"
}
