package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository"
)

const letterColumns = `
	id, subject, sender_id, from_name, from_email, to_name, to_email, department,
	priority, content, cc, cc_employees, unread, starred, is_cc, original_letter_id,
	status, rejection_reason, rejected_at, created_at, updated_at`

const attachmentMetaColumns = `id, letter_id, filename, content_type, size, uploaded_at`

type letterRepository struct {
	BaseRepository
}

func NewLetterRepository(base BaseRepository) repository.LetterRepository {
	return &letterRepository{base}
}

// Create inserts the letter and its attachments in one transaction.
func (r *letterRepository) Create(ctx context.Context, letter *model.Letter) error {
	query := `
		INSERT INTO letters (` + letterColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	now := time.Now()
	letter.Touch(now)
	if letter.CC == nil {
		letter.CC = pq.StringArray{}
	}
	if letter.CCEmployees == nil {
		letter.CCEmployees = model.DepartmentCC{}
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			letter.ID,
			letter.Subject,
			letter.SenderID,
			letter.FromName,
			letter.FromEmail,
			letter.To,
			letter.ToEmail,
			letter.Department,
			letter.Priority,
			letter.Content,
			letter.CC,
			letter.CCEmployees,
			letter.Unread,
			letter.Starred,
			letter.IsCC,
			letter.OriginalLetterID,
			letter.Status,
			letter.RejectionReason,
			letter.RejectedAt,
			letter.CreatedAt,
			letter.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create letter: %w", translate(err))
		}

		for _, att := range letter.Attachments {
			if err := insertAttachment(ctx, tx, letter.ID, att, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertAttachment(ctx context.Context, tx *sqlx.Tx, letterID uuid.UUID, att *model.Attachment, now time.Time) error {
	query := `
		INSERT INTO letter_attachments (
			id, letter_id, filename, content_type, data, size, uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	att.LetterID = letterID
	att.Size = int64(len(att.Data))
	if att.UploadedAt.IsZero() {
		att.UploadedAt = now
	}

	_, err := tx.ExecContext(ctx, query,
		att.ID,
		att.LetterID,
		att.Filename,
		att.ContentType,
		att.Data,
		att.Size,
		att.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store attachment %q: %w", att.Filename, translate(err))
	}
	return nil
}

// Get loads a letter together with its attachment bytes.
func (r *letterRepository) Get(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE id = $1`

	var letter model.Letter
	if err := r.db.GetContext(ctx, &letter, query, id); err != nil {
		return nil, fmt.Errorf("failed to get letter: %w", translate(err))
	}

	attQuery := `
		SELECT ` + attachmentMetaColumns + `, data
		FROM letter_attachments
		WHERE letter_id = $1
		ORDER BY uploaded_at
	`
	if err := r.db.SelectContext(ctx, &letter.Attachments, attQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}

	return &letter, nil
}

func (r *letterRepository) List(ctx context.Context, filters *model.LetterFilters) ([]*model.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE 1=1`
	args := []interface{}{}

	if filters != nil {
		if filters.ToEmail != "" {
			query += fmt.Sprintf(" AND to_email = $%d", len(args)+1)
			args = append(args, filters.ToEmail)
		}
		if filters.FromEmail != "" {
			query += fmt.Sprintf(" AND from_email = $%d", len(args)+1)
			args = append(args, filters.FromEmail)
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", len(args)+1)
			args = append(args, filters.Status)
		}
		if filters.Canonical {
			query += " AND is_cc = FALSE"
		}
	}
	query += " ORDER BY created_at DESC"

	var letters []*model.Letter
	if err := r.db.SelectContext(ctx, &letters, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list letters: %w", err)
	}

	if err := r.attachMetadata(ctx, letters); err != nil {
		return nil, err
	}
	return letters, nil
}

// attachMetadata fills in attachment descriptors without their bytes.
func (r *letterRepository) attachMetadata(ctx context.Context, letters []*model.Letter) error {
	if len(letters) == 0 {
		return nil
	}

	ids := make([]string, 0, len(letters))
	byID := make(map[uuid.UUID]*model.Letter, len(letters))
	for _, l := range letters {
		ids = append(ids, l.ID.String())
		byID[l.ID] = l
	}

	query := `
		SELECT ` + attachmentMetaColumns + `
		FROM letter_attachments
		WHERE letter_id = ANY($1::uuid[])
		ORDER BY uploaded_at
	`
	var atts []*model.Attachment
	if err := r.db.SelectContext(ctx, &atts, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}
	for _, a := range atts {
		if l, ok := byID[a.LetterID]; ok {
			l.Attachments = append(l.Attachments, a)
		}
	}
	return nil
}

func (r *letterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete letter: %w", err)
	}

	ok, err := changed(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (r *letterRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.LetterStatus) (bool, error) {
	query := `
		UPDATE letters
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update letter status: %w", err)
	}
	return changed(result)
}

func (r *letterRepository) Reject(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE letters
		SET status = $2, rejection_reason = $3, rejected_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, model.LetterStatusRejected, reason, at, model.LetterStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to reject letter: %w", err)
	}
	return changed(result)
}

func (r *letterRepository) SetUnread(ctx context.Context, id uuid.UUID, unread bool) (bool, error) {
	query := `
		UPDATE letters
		SET unread = $2, updated_at = NOW()
		WHERE id = $1 AND unread <> $2
	`

	result, err := r.db.ExecContext(ctx, query, id, unread)
	if err != nil {
		return false, fmt.Errorf("failed to update unread flag: %w", err)
	}
	return changed(result)
}

func (r *letterRepository) SetStarred(ctx context.Context, id uuid.UUID, starred bool) (bool, error) {
	query := `
		UPDATE letters
		SET starred = $2, updated_at = NOW()
		WHERE id = $1 AND starred <> $2
	`

	result, err := r.db.ExecContext(ctx, query, id, starred)
	if err != nil {
		return false, fmt.Errorf("failed to update starred flag: %w", err)
	}
	return changed(result)
}

func (r *letterRepository) GetAttachment(ctx context.Context, letterID uuid.UUID, filename string) (*model.Attachment, error) {
	query := `
		SELECT ` + attachmentMetaColumns + `, data
		FROM letter_attachments
		WHERE letter_id = $1 AND filename = $2
	`

	var att model.Attachment
	if err := r.db.GetContext(ctx, &att, query, letterID, filename); err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", translate(err))
	}
	return &att, nil
}

func (r *letterRepository) CountPendingBefore(ctx context.Context, before time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM letters WHERE status = $1 AND created_at < $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, model.LetterStatusPending, before); err != nil {
		return 0, fmt.Errorf("failed to count pending letters: %w", err)
	}
	return count, nil
}
