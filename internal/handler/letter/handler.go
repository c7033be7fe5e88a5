package letter

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/middleware"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/service/letter"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/httputil"
)

const (
	attachmentField = "attachment"

	msgPendingApproval = "High/urgent priority letter pending admin approval."
	msgSent            = "Letter created and emailed"
)

type Config struct {
	AllowedContentTypes []string
	MaxAttachmentBytes  int64
}

type Handler struct {
	svc          letter.Service
	auth         *middleware.AuthMiddleware
	config       Config
	allowedTypes map[string]bool
}

func NewHandler(svc letter.Service, auth *middleware.AuthMiddleware, config Config) *Handler {
	allowed := make(map[string]bool, len(config.AllowedContentTypes))
	for _, t := range config.AllowedContentTypes {
		allowed[strings.ToLower(t)] = true
	}
	if config.MaxAttachmentBytes <= 0 {
		config.MaxAttachmentBytes = 5 << 20
	}
	return &Handler{
		svc:          svc,
		auth:         auth,
		config:       config,
		allowedTypes: allowed,
	}
}

// RegisterRoutes expects r to be behind Authenticate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := h.auth.RequireAdmin()

	letters := r.Group("/letters")
	{
		letters.POST("", h.CreateLetter)
		letters.GET("", h.ListLetters)
		letters.GET("/sent", h.ListSent)
		letters.GET("/pending", admin, h.ListPending)
		letters.GET("/download/:letterId/:filename", h.DownloadAttachment)
		letters.GET("/view/:letterId/:filename", h.ViewAttachment)
		letters.POST("/status", h.UpdateStatus)
		letters.POST("/approve", admin, h.Approve)
		letters.POST("/reject", admin, h.Reject)
		letters.GET("/:id", h.GetLetter)
		letters.POST("/:id/forward", h.Forward)
		letters.DELETE("/:id", admin, h.DeleteLetter)
	}
}

func (h *Handler) CreateLetter(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var (
		req *model.SendLetterRequest
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req, err = h.bindMultipart(c)
	} else {
		req, err = bindJSON(c)
	}
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			httputil.RespondWithError(c, appErr)
			return
		}
		httputil.RespondWithBindError(c, err)
		return
	}

	// Only admins may send on behalf of someone else; everyone else sends as
	// themselves whatever from carries.
	if caller.IsAdmin() {
		req.From = append(req.From, caller.ID.String())
	} else {
		req.From = []string{caller.ID.String()}
	}

	created, err := h.svc.Send(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	message := msgSent
	if created.Status == model.LetterStatusPending {
		message = msgPendingApproval
	}
	httputil.RespondWithMessage(c, http.StatusCreated, message, created)
}

func bindJSON(c *gin.Context) (*model.SendLetterRequest, error) {
	var body model.CreateLetterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, err
	}
	return toSendRequest(&body), nil
}

func (h *Handler) bindMultipart(c *gin.Context) (*model.SendLetterRequest, error) {
	var body model.CreateLetterRequest
	if err := c.ShouldBind(&body); err != nil {
		return nil, err
	}

	// Form clients send both CC fields JSON-encoded.
	if raw := c.PostForm("ccEmployees"); raw != "" {
		cc, err := model.ParseCCInput([]byte(raw))
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		body.CCEmployees = cc
	}
	if len(body.CC) == 1 && strings.HasPrefix(strings.TrimSpace(body.CC[0]), "[") {
		cc, err := model.ParseCCInput([]byte(body.CC[0]))
		if err != nil || (cc.Kind != model.CCEmailList && !cc.IsEmpty()) {
			return nil, apperrors.Validation("cc must be a list of email addresses")
		}
		body.CC = cc.Emails
	}

	req := toSendRequest(&body)

	att, err := h.readAttachment(c)
	if err != nil {
		return nil, err
	}
	if att != nil {
		req.Attachments = []*model.Attachment{att}
	}
	return req, nil
}

func (h *Handler) readAttachment(c *gin.Context) (*model.Attachment, error) {
	header, err := c.FormFile(attachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("invalid attachment: %v", err))
	}

	if header.Size > h.config.MaxAttachmentBytes {
		return nil, apperrors.Validation(fmt.Sprintf("attachment exceeds %d bytes", h.config.MaxAttachmentBytes))
	}

	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if !h.allowedTypes[strings.ToLower(contentType)] {
		return nil, apperrors.Validation(fmt.Sprintf("attachment type %s is not allowed", contentType))
	}

	f, err := header.Open()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("open attachment: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.config.MaxAttachmentBytes+1))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("read attachment: %w", err))
	}
	if int64(len(data)) > h.config.MaxAttachmentBytes {
		return nil, apperrors.Validation(fmt.Sprintf("attachment exceeds %d bytes", h.config.MaxAttachmentBytes))
	}

	return &model.Attachment{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func toSendRequest(body *model.CreateLetterRequest) *model.SendLetterRequest {
	req := &model.SendLetterRequest{
		Subject:     body.Subject,
		To:          body.To,
		Department:  body.Department,
		Priority:    model.Priority(strings.ToLower(body.Priority)),
		Content:     body.Content,
		CC:          body.CC,
		CCEmployees: body.CCEmployees,
	}
	if body.From != "" {
		req.From = []string{body.From}
	}
	return req
}

// ListLetters returns the caller's inbox. Admins may pass all=true for every
// letter or userEmail for someone else's inbox.
func (h *Handler) ListLetters(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var (
		letters []*model.Letter
		err     error
	)
	switch {
	case c.Query("all") == "true":
		if !caller.IsAdmin() {
			httputil.RespondWithError(c, apperrors.Forbidden("admin access required"))
			return
		}
		letters, err = h.svc.ListAll(c.Request.Context())
	default:
		inbox := caller.Email
		if userEmail := c.Query("userEmail"); userEmail != "" && caller.IsAdmin() {
			inbox = userEmail
		}
		letters, err = h.svc.ListInbox(c.Request.Context(), inbox)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithData(c, http.StatusOK, letters)
}

func (h *Handler) ListSent(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	letters, err := h.svc.ListSent(c.Request.Context(), caller.Email)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithData(c, http.StatusOK, letters)
}

func (h *Handler) ListPending(c *gin.Context) {
	letters, err := h.svc.ListPending(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithData(c, http.StatusOK, letters)
}

func (h *Handler) GetLetter(c *gin.Context) {
	l, ok := h.loadVisible(c, c.Param("id"))
	if !ok {
		return
	}
	httputil.RespondWithData(c, http.StatusOK, l)
}

func (h *Handler) DownloadAttachment(c *gin.Context) {
	h.serveAttachment(c, "attachment")
}

func (h *Handler) ViewAttachment(c *gin.Context) {
	h.serveAttachment(c, "inline")
}

func (h *Handler) serveAttachment(c *gin.Context, disposition string) {
	l, ok := h.loadVisible(c, c.Param("letterId"))
	if !ok {
		return
	}

	att, err := h.svc.GetAttachment(c.Request.Context(), l.ID, c.Param("filename"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{
		"filename": att.Filename,
	}))
	c.Data(http.StatusOK, att.ContentType, att.Data)
}

// UpdateStatus applies any combination of read, star and receipt changes and
// returns the letter as it stands afterwards.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req model.UpdateLetterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	if req.Unread == nil && req.Starred == nil && req.Status == nil {
		httputil.RespondWithBadRequest(c, "nothing to update")
		return
	}

	l, ok := h.loadVisible(c, req.LetterID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.Unread != nil {
		if *req.Unread {
			l, err = h.svc.MarkUnread(ctx, l.ID)
		} else {
			l, err = h.svc.MarkRead(ctx, l.ID)
		}
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}
	if req.Starred != nil {
		if l, err = h.svc.ToggleStar(ctx, l.ID, *req.Starred); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}
	if req.Status != nil {
		if l, err = h.svc.UpdateStatus(ctx, l.ID, model.LetterStatus(*req.Status)); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}

	httputil.RespondWithData(c, http.StatusOK, l)
}

func (h *Handler) Approve(c *gin.Context) {
	var req model.ApproveLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	l, err := h.svc.Approve(c.Request.Context(), uuid.MustParse(req.LetterID))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Letter approved and sent", l)
}

func (h *Handler) Reject(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.RejectLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	l, err := h.svc.Reject(c.Request.Context(), uuid.MustParse(req.LetterID), req.RejectionReason, caller.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Letter rejected", l)
}

func (h *Handler) Forward(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.ForwardLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	l, ok := h.loadVisible(c, c.Param("id"))
	if !ok {
		return
	}

	forwarded, err := h.svc.Forward(c.Request.Context(), l.ID, caller, req.Recipients, req.Comment)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusCreated, fmt.Sprintf("Letter forwarded to %d recipient(s)", len(forwarded)), forwarded)
}

func (h *Handler) DeleteLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid letter ID")
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Letter deleted", nil)
}

// loadVisible loads a letter the caller is allowed to see: admins see every
// letter, everyone else only letters they sent or received. The response is
// written on failure.
func (h *Handler) loadVisible(c *gin.Context, rawID string) (*model.Letter, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid letter ID")
		return nil, false
	}

	caller, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return nil, false
	}

	l, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}

	if !caller.IsAdmin() &&
		!strings.EqualFold(l.ToEmail, caller.Email) &&
		!strings.EqualFold(l.FromEmail, caller.Email) {
		httputil.RespondWithError(c, apperrors.Forbidden("you do not have access to this letter"))
		return nil, false
	}
	return l, true
}
