package letter

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/letter-api/internal/email"
	"github.com/jwalitptl/letter-api/internal/model"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

// Send resolves the parties, stores the canonical letter and, unless the
// priority needs approval, fans out CC copies and notifications and mails
// everyone. Records written before a mail failure are kept.
func (s *service) Send(ctx context.Context, req *model.SendLetterRequest) (*model.Letter, error) {
	if err := validateSend(req); err != nil {
		return nil, err
	}
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}

	plainCC, departments := storedCC(req)
	resolution, err := s.resolver.Resolve(ctx, req.From, req.To, plainCC, model.DepartmentMapCC(departments))
	if err != nil {
		return nil, err
	}

	letter := &model.Letter{
		Subject:     strings.TrimSpace(req.Subject),
		SenderID:    resolution.Sender.ID,
		FromName:    resolution.Sender.Name,
		FromEmail:   resolution.Sender.Email,
		To:          resolution.Recipient.Name,
		ToEmail:     resolution.Recipient.Email,
		Department:  strings.TrimSpace(req.Department),
		Priority:    req.Priority,
		Content:     req.Content,
		CC:          plainCC,
		CCEmployees: departments,
		Unread:      true,
		Status:      model.LetterStatusSent,
		Attachments: req.Attachments,
	}
	if req.Priority.RequiresApproval() {
		letter.Status = model.LetterStatusPending
	}

	if err := s.letters.Create(ctx, letter); err != nil {
		return nil, apperrors.Persistence("create letter", err)
	}

	logger := log.With().
		Str("letter_id", letter.ID.String()).
		Str("priority", string(letter.Priority)).
		Logger()

	if letter.Status == model.LetterStatusPending {
		s.metrics.LettersPending.Inc()
		logger.Info().Msg("letter held for approval")
		return letter, nil
	}

	s.notify(ctx, newLetterNotification(letter, resolution.Recipient, resolution.Sender, false))
	s.fanOutCC(ctx, letter, resolution.Sender, resolution.CC)

	if err := s.deliver(ctx, letter, resolution.Sender, resolution.Recipient, resolution.CC); err != nil {
		s.partialFailure(stageMail, err, &letter.ID)
		return nil, err
	}

	s.metrics.LettersSent.WithLabelValues(string(letter.Priority)).Inc()
	logger.Info().Int("cc", len(resolution.CC)).Msg("letter sent")
	return letter, nil
}

// fanOutCC gives every known CC address its own inbox copy. Unknown
// addresses are skipped so one bad entry does not stop the send.
func (s *service) fanOutCC(ctx context.Context, letter *model.Letter, sender *model.User, cc []string) {
	for _, addr := range cc {
		user, err := s.resolver.LookupByEmail(ctx, addr)
		if err != nil {
			s.partialFailure(stageCCLookup, err, &letter.ID)
			continue
		}
		if user == nil {
			s.metrics.CCSkipped.Inc()
			log.Warn().
				Str("letter_id", letter.ID.String()).
				Str("cc", addr).
				Msg("cc address matches no user, skipping")
			continue
		}

		dup := letter.CCDuplicateFor(user)
		if err := s.letters.Create(ctx, dup); err != nil {
			s.partialFailure(stageCCDuplicate, err, &letter.ID)
			continue
		}
		s.notify(ctx, newLetterNotification(dup, user, sender, true))
	}
}

// deliver composes the confidential email and hands it to the mailer.
func (s *service) deliver(ctx context.Context, letter *model.Letter, sender, to *model.User, cc []string) error {
	msg, err := email.Compose(email.Letter{
		Sender:      sender,
		Recipient:   to,
		CC:          cc,
		Subject:     letter.Subject,
		Department:  letter.Department,
		Priority:    letter.Priority,
		Content:     letter.Content,
		Attachments: letter.Attachments,
		Date:        s.now(),
	})
	if err != nil {
		return apperrors.MailDelivery(err)
	}

	timer := prometheus.NewTimer(s.metrics.MailLatency)
	err = s.mailer.Send(ctx, msg)
	timer.ObserveDuration()
	if err != nil {
		s.metrics.MailFailures.Inc()
		return apperrors.MailDelivery(err)
	}
	return nil
}

func validateSend(req *model.SendLetterRequest) error {
	if strings.TrimSpace(req.Subject) == "" {
		return apperrors.Validation("subject is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.Validation("content is required")
	}
	if strings.TrimSpace(req.Department) == "" {
		return apperrors.Validation("department is required")
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return apperrors.Validation(fmt.Sprintf("invalid priority: %s", req.Priority))
	}
	return nil
}

// storedCC splits the request's CC input into the two persisted fields:
// literal addresses and the department selection.
func storedCC(req *model.SendLetterRequest) ([]string, model.DepartmentCC) {
	plain := model.NormalizeEmails(req.CC)
	departments := model.DepartmentCC{}

	switch req.CCEmployees.Kind {
	case model.CCEmailList:
		plain = append(plain, model.NormalizeEmails(req.CCEmployees.Emails)...)
	case model.CCDepartmentMap:
		for dept, names := range req.CCEmployees.Departments {
			departments[dept] = append([]string(nil), names...)
		}
	}
	return plain, departments
}

func newLetterNotification(letter *model.Letter, to, from *model.User, cc bool) *model.Notification {
	n := &model.Notification{
		RecipientID:     to.ID,
		Type:            model.NotificationNewLetter,
		Title:           "New Letter Received",
		Message:         fmt.Sprintf("You have received a new letter from %s regarding \"%s\"", from.Name, letter.Subject),
		RelatedLetterID: &letter.ID,
		Priority:        model.NotificationPriorityFor(letter.Priority),
	}
	if cc {
		n.Title = "Letter Copy Received (CC)"
		n.Message = fmt.Sprintf("You have received a copy of a letter from %s regarding \"%s\"", from.Name, letter.Subject)
	}
	return n
}
