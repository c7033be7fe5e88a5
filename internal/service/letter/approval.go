package letter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/model"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

const errNotPending = "letter is not pending approval"

// Approve mails a pending letter and marks it sent. The letter is claimed
// with a conditional pending->approved update first, so concurrent or
// repeated calls send at most one email. A mail failure puts it back to
// pending for another attempt.
func (s *service) Approve(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != model.LetterStatusPending {
		return nil, apperrors.InvalidState(errNotPending)
	}

	claimed, err := s.letters.TransitionStatus(ctx, id, model.LetterStatusPending, model.LetterStatusApproved)
	if err != nil {
		return nil, apperrors.Persistence("claim letter", err)
	}
	if !claimed {
		return nil, apperrors.InvalidState(errNotPending)
	}

	if err := s.dispatchApproved(ctx, letter); err != nil {
		s.release(ctx, id)
		return nil, err
	}

	if _, err := s.letters.TransitionStatus(ctx, id, model.LetterStatusApproved, model.LetterStatusSent); err != nil {
		// The email is out; leaving the row at approved keeps it from being mailed again.
		s.partialFailure(stageMail, err, &id)
		return nil, apperrors.Persistence("mark letter sent", err)
	}
	letter.Status = model.LetterStatusSent

	s.metrics.LettersApproved.Inc()
	log.Info().Str("letter_id", id.String()).Msg("letter approved and sent")
	return letter, nil
}

// dispatchApproved re-resolves the parties of a stored letter, mails it and
// notifies the recipient.
func (s *service) dispatchApproved(ctx context.Context, letter *model.Letter) error {
	sender, err := s.resolver.ResolveSender(ctx, []string{letter.SenderID.String()})
	if err != nil {
		return err
	}
	to, err := s.resolver.ResolveRecipient(ctx, letter.To)
	if err != nil {
		return err
	}
	cc, err := s.resolver.ResolveCC(ctx, model.DepartmentMapCC(letter.CCEmployees), letter.CC)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, letter, sender, to, cc); err != nil {
		log.Error().Err(err).Str("letter_id", letter.ID.String()).Msg("approved letter could not be mailed")
		return err
	}

	s.notify(ctx, newLetterNotification(letter, to, sender, false))
	return nil
}

// release returns a claimed letter to pending.
func (s *service) release(ctx context.Context, id uuid.UUID) {
	if _, err := s.letters.TransitionStatus(ctx, id, model.LetterStatusApproved, model.LetterStatusPending); err != nil {
		log.Error().Err(err).Str("letter_id", id.String()).Msg("failed to return letter to pending")
	}
}

// Reject closes a pending letter with a reason. With ReplyOnReject the
// sender also gets a reply letter from the reviewer.
func (s *service) Reject(ctx context.Context, id uuid.UUID, reason string, reviewerID uuid.UUID) (*model.Letter, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("rejection reason is required")
	}

	letter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != model.LetterStatusPending {
		return nil, apperrors.InvalidState(errNotPending)
	}

	at := s.now()
	rejected, err := s.letters.Reject(ctx, id, reason, at)
	if err != nil {
		return nil, apperrors.Persistence("reject letter", err)
	}
	if !rejected {
		return nil, apperrors.InvalidState(errNotPending)
	}
	letter.Status = model.LetterStatusRejected
	letter.RejectionReason = &reason
	letter.RejectedAt = &at

	s.metrics.LettersRejected.Inc()
	log.Info().Str("letter_id", id.String()).Msg("letter rejected")

	if s.config.ReplyOnReject {
		if err := s.replyToRejected(ctx, letter, reviewerID); err != nil {
			s.partialFailure(stageReply, err, &letter.ID)
		}
	}
	return letter, nil
}

func (s *service) replyToRejected(ctx context.Context, letter *model.Letter, reviewerID uuid.UUID) error {
	reviewer, err := s.resolver.ResolveSender(ctx, []string{reviewerID.String()})
	if err != nil {
		return err
	}
	sender, err := s.resolver.ResolveSender(ctx, []string{letter.SenderID.String()})
	if err != nil {
		return err
	}

	reply := &model.Letter{
		Subject:    "Rejected letter: " + letter.Subject,
		SenderID:   reviewer.ID,
		FromName:   reviewer.Name,
		FromEmail:  reviewer.Email,
		To:         sender.Name,
		ToEmail:    sender.Email,
		Department: letter.Department,
		Priority:   model.PriorityNormal,
		Content:    fmt.Sprintf("%s\n\n--- Original Message ---\n\n%s", *letter.RejectionReason, letter.Content),
		Unread:     true,
		Status:     model.LetterStatusSent,
	}
	if err := s.letters.Create(ctx, reply); err != nil {
		return fmt.Errorf("failed to create reply letter: %w", err)
	}

	s.notify(ctx, newLetterNotification(reply, sender, reviewer, false))
	return nil
}
