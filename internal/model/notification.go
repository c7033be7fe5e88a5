package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewLetter     NotificationType = "new_letter"
	NotificationLetterRead    NotificationType = "letter_read"
	NotificationLetterStarred NotificationType = "letter_starred"
	NotificationUrgentLetter  NotificationType = "urgent_letter"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewLetter, NotificationLetterRead, NotificationLetterStarred, NotificationUrgentLetter:
		return true
	}
	return false
}

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

func (p NotificationPriority) Valid() bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh:
		return true
	}
	return false
}

// NotificationPriorityFor maps a letter priority onto the alert priority
// used for new-letter notifications.
func NotificationPriorityFor(p Priority) NotificationPriority {
	if p == PriorityUrgent {
		return NotificationPriorityHigh
	}
	return NotificationPriorityMedium
}

type Notification struct {
	Base
	RecipientID     uuid.UUID            `json:"recipient" db:"recipient_id"`
	Type            NotificationType     `json:"type" db:"type"`
	Title           string               `json:"title" db:"title"`
	Message         string               `json:"message" db:"message"`
	RelatedLetterID *uuid.UUID           `json:"relatedLetter,omitempty" db:"related_letter_id"`
	Read            bool                 `json:"read" db:"read"`
	Priority        NotificationPriority `json:"priority" db:"priority"`
}

// NotificationEvent is what gets published for in-app delivery.
type NotificationEvent struct {
	ID             uuid.UUID        `json:"id"`
	NotificationID uuid.UUID        `json:"notification_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	CreatedAt      time.Time        `json:"created_at"`
}

type CreateNotificationRequest struct {
	Recipient     string `json:"recipient" binding:"required,uuid"`
	Type          string `json:"type" binding:"required,oneof=new_letter letter_read letter_starred urgent_letter"`
	Title         string `json:"title" binding:"required"`
	Message       string `json:"message" binding:"required"`
	RelatedLetter string `json:"relatedLetter" binding:"omitempty,uuid"`
	Priority      string `json:"priority" binding:"omitempty,oneof=low medium high"`
}
