package letter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/letter-api/internal/model"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

// MarkRead clears the unread flag. Only a real change notifies the sender.
func (s *service) MarkRead(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := s.letters.SetUnread(ctx, id, false)
	if err != nil {
		return nil, apperrors.Persistence("mark letter read", err)
	}
	letter.Unread = false

	if changed {
		s.notify(ctx, &model.Notification{
			RecipientID:     letter.SenderID,
			Type:            model.NotificationLetterRead,
			Title:           "Letter Read",
			Message:         fmt.Sprintf("%s has read your letter regarding \"%s\"", letter.To, letter.Subject),
			RelatedLetterID: &letter.ID,
			Priority:        model.NotificationPriorityLow,
		})
	}
	return letter, nil
}

func (s *service) MarkUnread(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.letters.SetUnread(ctx, id, true); err != nil {
		return nil, apperrors.Persistence("mark letter unread", err)
	}
	letter.Unread = true
	return letter, nil
}

// ToggleStar sets the starred flag. Starring, not unstarring, notifies the
// sender, and only when the flag actually flips.
func (s *service) ToggleStar(ctx context.Context, id uuid.UUID, starred bool) (*model.Letter, error) {
	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := s.letters.SetStarred(ctx, id, starred)
	if err != nil {
		return nil, apperrors.Persistence("star letter", err)
	}
	letter.Starred = starred

	if changed && starred {
		s.notify(ctx, &model.Notification{
			RecipientID:     letter.SenderID,
			Type:            model.NotificationLetterStarred,
			Title:           "Letter Starred",
			Message:         fmt.Sprintf("%s has starred your letter regarding \"%s\"", letter.To, letter.Subject),
			RelatedLetterID: &letter.ID,
			Priority:        model.NotificationPriorityLow,
		})
	}
	return letter, nil
}

// UpdateStatus records a delivery receipt. Only sent or delivered letters
// move, and only to delivered or read.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.LetterStatus) (*model.Letter, error) {
	if status != model.LetterStatusDelivered && status != model.LetterStatusRead {
		return nil, apperrors.Validation(fmt.Sprintf("status %q cannot be set directly", status))
	}

	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != model.LetterStatusSent && letter.Status != model.LetterStatusDelivered {
		return nil, apperrors.InvalidState(fmt.Sprintf("cannot move a %s letter to %s", letter.Status, status))
	}

	ok, err := s.letters.TransitionStatus(ctx, id, letter.Status, status)
	if err != nil {
		return nil, apperrors.Persistence("update letter status", err)
	}
	if !ok {
		return nil, apperrors.InvalidState("letter status changed concurrently")
	}
	letter.Status = status
	return letter, nil
}

// Forward sends a fresh letter per recipient. The original is untouched and
// its CC selection is not carried over.
func (s *service) Forward(ctx context.Context, id uuid.UUID, caller *model.User, recipients []string, comment string) ([]*model.Letter, error) {
	names := model.NormalizeEmails(recipients)
	if len(names) == 0 {
		return nil, apperrors.Validation("at least one recipient is required")
	}

	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	content := "--- Forwarded Message ---\n\n" + original.Content
	if c := strings.TrimSpace(comment); c != "" {
		content = c + "\n\n" + content
	}

	forwarded := make([]*model.Letter, 0, len(names))
	for _, name := range names {
		to, err := s.resolver.ResolveRecipient(ctx, name)
		if err != nil {
			return forwarded, err
		}

		department := to.Department
		if department == "" {
			department = original.Department
		}

		attachments := make([]*model.Attachment, 0, len(original.Attachments))
		for _, a := range original.Attachments {
			attachments = append(attachments, a.Copy())
		}

		letter, err := s.Send(ctx, &model.SendLetterRequest{
			Subject:     "Fwd: " + original.Subject,
			From:        []string{caller.ID.String()},
			To:          to.Name,
			Department:  department,
			Priority:    original.Priority,
			Content:     content,
			Attachments: attachments,
		})
		if err != nil {
			return forwarded, err
		}
		s.metrics.LettersForwarded.Inc()
		forwarded = append(forwarded, letter)
	}
	return forwarded, nil
}
