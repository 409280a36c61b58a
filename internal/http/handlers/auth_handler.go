// Auth HTTP handlers.
//
// This file exposes the session endpoints:
//   - GET    /session         (session snapshot)
//   - POST   /auth/login      (authenticate)
//   - POST   /auth/register   (validate locally, then register)
//   - POST   /auth/logout     (reset the session)
//   - DELETE /auth/error      (dismiss the session error)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/services"
)

// LoginRequest is the login form.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"secret1"`
}

// RegisterRequest is the sign-up form. Fields are validated by the service,
// not by the binder, so that every problem is reported at once.
type RegisterRequest struct {
	Username        string `json:"username" example:"alice"`
	Email           string `json:"email" example:"alice@example.com"`
	Password        string `json:"password" example:"secret1"`
	ConfirmPassword string `json:"confirm_password" example:"secret1"`
}

// AuthResponse is returned after a successful login or registration.
type AuthResponse struct {
	User    domain.User    `json:"user"`
	Session domain.Session `json:"session"`
}

// GetSession godoc
// @ID          getSession
// @Summary     Session snapshot
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  domain.Session
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ok(c, http.StatusOK, h.state.Session.Snapshot())
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description On failure the session records the gateway message as its last error.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AuthResponse{User: user, Session: h.state.Session.Snapshot()})
}

// Register godoc
// @ID          register
// @Summary     Register an account
// @Description Local validation failures return 422 with every problem in `errors`.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Sign-up form"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Username taken"
// @Failure     422   {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed sign-up form")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), services.RegistrationForm{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, AuthResponse{User: user, Session: h.state.Session.Snapshot()})
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Tags        Auth
// @Success     204
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context())
	noContent(c)
}

// ClearAuthError godoc
// @ID          clearAuthError
// @Summary     Dismiss the session error
// @Tags        Auth
// @Success     204
// @Router      /auth/error [delete]
func (h *Handlers) ClearAuthError(c *gin.Context) {
	h.auth.ClearError()
	noContent(c)
}
