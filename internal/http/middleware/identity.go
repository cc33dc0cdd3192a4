// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. Authentication is delegated to an
// upstream gateway that forwards the authenticated user id in X-User-ID; the
// middleware only copies it into the Gin context so the logger, the rate
// limiter, the idempotency validator and the handlers all agree on who is
// calling.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user id.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the Gin context key holding the caller id.
const ctxKeyUserID = "userID"

// Identity stashes the trimmed X-User-ID header under the "userID" context
// key. Requests without the header pass through anonymously; handlers decide
// whether an identity is required.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// UserID returns the caller id stored by Identity.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
