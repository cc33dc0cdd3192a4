// User HTTP handlers.
//
//   - POST   /users        (register)
//   - GET    /users/{id}   (fetch)
//   - DELETE /users/{id}   (remove the account and everything tied to it)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest is the JSON payload for registering a user.
type CreateUserRequest struct {
	// DisplayName is trimmed and whitespace-collapsed; 1 to 150 characters.
	DisplayName string `json:"display_name" binding:"required" example:"Alice"`
	// Role is guest (default), host or admin.
	Role string `json:"role" example:"guest" enums:"guest,host,admin"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.CreateUserRequest  true  "User payload"
// @Success     201   {object} domain.User
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     503   {object} handlers.ErrorResponse "Store unavailable"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "display_name required")
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.DisplayName, req.Role)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Fetch a user
// @Tags        Users
// @Produce     json
// @Param       id   path     string  true  "User ID"  format(uuid)
// @Success     200  {object} domain.User
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Description Removes the user with every message they sent or received (and
// @Description replies below those), their notifications and the edit history
// @Description they authored. Messages they only edited survive with the
// @Description editor cleared. The caller must be the user or an admin.
// @Tags        Users
// @Param       X-User-ID  header  string  true  "Acting user ID"
// @Param       id         path    string  true  "User ID"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     403  {object} handlers.ErrorResponse "Not permitted"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	actor, found := caller(c)
	if !found {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
