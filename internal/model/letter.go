package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RequiresApproval reports whether letters of this priority wait for an admin.
func (p Priority) RequiresApproval() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type LetterStatus string

const (
	LetterStatusDraft     LetterStatus = "draft"
	LetterStatusPending   LetterStatus = "pending"
	LetterStatusApproved  LetterStatus = "approved"
	LetterStatusSent      LetterStatus = "sent"
	LetterStatusDelivered LetterStatus = "delivered"
	LetterStatusRead      LetterStatus = "read"
	LetterStatusRejected  LetterStatus = "rejected"
)

// Letter is one piece of correspondence: either the canonical record of a
// send or a CC-duplicate pointing back at it.
type Letter struct {
	Base
	Subject          string         `json:"subject" db:"subject"`
	SenderID         uuid.UUID      `json:"from" db:"sender_id"`
	FromName         string         `json:"fromName" db:"from_name"`
	FromEmail        string         `json:"fromEmail" db:"from_email"`
	To               string         `json:"to" db:"to_name"`
	ToEmail          string         `json:"toEmail" db:"to_email"`
	Department       string         `json:"department" db:"department"`
	Priority         Priority       `json:"priority" db:"priority"`
	Content          string         `json:"content" db:"content"`
	CC               pq.StringArray `json:"cc" db:"cc"`
	CCEmployees      DepartmentCC   `json:"ccEmployees" db:"cc_employees"`
	Unread           bool           `json:"unread" db:"unread"`
	Starred          bool           `json:"starred" db:"starred"`
	IsCC             bool           `json:"isCC" db:"is_cc"`
	OriginalLetterID *uuid.UUID     `json:"originalLetter,omitempty" db:"original_letter_id"`
	Status           LetterStatus   `json:"status" db:"status"`
	RejectionReason  *string        `json:"rejectionReason,omitempty" db:"rejection_reason"`
	RejectedAt       *time.Time     `json:"rejectedAt,omitempty" db:"rejected_at"`
	Attachments      []*Attachment  `json:"attachments" db:"-"`
}

// Attachment is addressed by (letter, filename). Data is only loaded for
// download/view and mail composition.
type Attachment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	LetterID    uuid.UUID `json:"letterId" db:"letter_id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"contentType" db:"content_type"`
	Data        []byte    `json:"-" db:"data"`
	Size        int64     `json:"size" db:"size"`
	UploadedAt  time.Time `json:"uploadDate" db:"uploaded_at"`
}

// CCDuplicateFor copies l into an inbox entry for a CC recipient.
func (l *Letter) CCDuplicateFor(recipient *User) *Letter {
	originalID := l.ID
	dup := &Letter{
		Subject:          l.Subject,
		SenderID:         l.SenderID,
		FromName:         l.FromName,
		FromEmail:        l.FromEmail,
		To:               recipient.Name,
		ToEmail:          recipient.Email,
		Department:       l.Department,
		Priority:         l.Priority,
		Content:          l.Content,
		CC:               append(pq.StringArray(nil), l.CC...),
		CCEmployees:      l.CCEmployees,
		Unread:           true,
		IsCC:             true,
		OriginalLetterID: &originalID,
		Status:           LetterStatusSent,
	}
	for _, a := range l.Attachments {
		dup.Attachments = append(dup.Attachments, a.Copy())
	}
	return dup
}

// Copy returns a detached attachment with no id or owner.
func (a *Attachment) Copy() *Attachment {
	return &Attachment{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Data:        append([]byte(nil), a.Data...),
		Size:        a.Size,
		UploadedAt:  a.UploadedAt,
	}
}

// SendLetterRequest is the orchestrator input for a new letter.
type SendLetterRequest struct {
	Subject     string
	From        []string
	To          string
	Department  string
	Priority    Priority
	Content     string
	CC          []string
	CCEmployees CCInput
	Attachments []*Attachment
}

type LetterFilters struct {
	ToEmail   string
	FromEmail string
	Status    LetterStatus
	Canonical bool
}

// CreateLetterRequest is the JSON body accepted by POST /letters.
type CreateLetterRequest struct {
	Subject     string   `json:"subject" form:"subject" binding:"required"`
	From        string   `json:"from" form:"from"`
	To          string   `json:"to" form:"to" binding:"required"`
	Department  string   `json:"department" form:"department" binding:"required"`
	Priority    string   `json:"priority" form:"priority" binding:"omitempty,letterpriority"`
	Content     string   `json:"content" form:"content" binding:"required"`
	CC          []string `json:"cc" form:"cc"`
	CCEmployees CCInput  `json:"ccEmployees" form:"-"`
}

type UpdateLetterStatusRequest struct {
	LetterID string  `json:"letterId" binding:"required,uuid"`
	Unread   *bool   `json:"unread"`
	Starred  *bool   `json:"starred"`
	Status   *string `json:"status" binding:"omitempty,oneof=delivered read"`
}

type ApproveLetterRequest struct {
	LetterID string `json:"letterId" binding:"required,uuid"`
}

type RejectLetterRequest struct {
	LetterID        string `json:"letterId" binding:"required,uuid"`
	RejectionReason string `json:"rejectionReason" binding:"required"`
}

type ForwardLetterRequest struct {
	Recipients []string `json:"recipients" binding:"required,min=1,dive,required"`
	Comment    string   `json:"comment"`
}
