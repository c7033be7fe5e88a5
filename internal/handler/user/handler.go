package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/middleware"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/service/user"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/httputil"
)

type Handler struct {
	service *user.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *user.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := h.auth.RequireAdmin()

	users := r.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", admin, h.UpdateUser)
		users.DELETE("/:id", admin, h.DeleteUser)
	}
}

// RegisterPublicRoutes mounts the password reset endpoints, which are used
// before the caller can log in.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("/forgot-password", h.ForgotPassword)
		users.POST("/reset-password/:token", h.ResetPassword)
	}
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithData(c, http.StatusOK, user)
}

// ListUsers backs the recipient and CC pickers.
func (h *Handler) ListUsers(c *gin.Context) {
	var filters model.UserFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	users, err := h.service.ListUsers(c.Request.Context(), &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithData(c, http.StatusOK, users)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	if req.Empty() {
		httputil.RespondWithBadRequest(c, "nothing to update")
		return
	}

	user, err := h.service.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, http.StatusOK, "User updated", user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	if caller, ok := middleware.CurrentUser(c); ok && caller.ID == id {
		httputil.RespondWithError(c, apperrors.InvalidState("cannot delete your own account"))
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, http.StatusOK, "User deleted", nil)
}

// ForgotPassword answers the same way whether or not the email is known.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, http.StatusOK, "If the email is registered, a reset link has been sent", nil)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, http.StatusOK, "Password has been reset", nil)
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}
