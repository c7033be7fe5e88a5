package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/middleware"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/service/notification"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/httputil"
)

type Handler struct {
	svc  notification.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc notification.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.auth.RequireAdmin(), h.CreateNotification)
		notifications.GET("/user/:userId", h.ListForUser)
		notifications.PUT("/user/:userId/read-all", h.MarkAllRead)
		notifications.PUT("/:notificationId/read", h.MarkRead)
		notifications.DELETE("/:notificationId", h.DeleteNotification)
	}
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req model.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	n := &model.Notification{
		RecipientID: uuid.MustParse(req.Recipient),
		Type:        model.NotificationType(req.Type),
		Title:       req.Title,
		Message:     req.Message,
		Priority:    model.NotificationPriority(req.Priority),
	}
	if req.RelatedLetter != "" {
		related := uuid.MustParse(req.RelatedLetter)
		n.RelatedLetterID = &related
	}

	if err := h.svc.Create(c.Request.Context(), n); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithData(c, http.StatusCreated, n)
}

func (h *Handler) ListForUser(c *gin.Context) {
	userID, ok := h.ownUserID(c)
	if !ok {
		return
	}

	notifications, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithData(c, http.StatusOK, notifications)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := h.ownUserID(c)
	if !ok {
		return
	}

	updated, err := h.svc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithData(c, http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) MarkRead(c *gin.Context) {
	n, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), n.ID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	n.Read = true
	httputil.RespondWithData(c, http.StatusOK, n)
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	n, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), n.ID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Notification deleted", nil)
}

// ownUserID parses :userId and checks it is the caller, unless the caller
// is an admin.
func (h *Handler) ownUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid user ID")
		return uuid.Nil, false
	}

	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return uuid.Nil, false
	}
	if caller.ID != userID && !caller.IsAdmin() {
		httputil.RespondWithError(c, apperrors.Forbidden("cannot access another user's notifications"))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) loadOwned(c *gin.Context) (*model.Notification, bool) {
	id, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid notification ID")
		return nil, false
	}

	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return nil, false
	}

	n, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}
	if n.RecipientID != caller.ID && !caller.IsAdmin() {
		httputil.RespondWithError(c, apperrors.Forbidden("cannot access another user's notifications"))
		return nil, false
	}
	return n, true
}
