package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type ScheduledEmailRepository struct {
	db *pgxpool.Pool
}

func NewScheduledEmailRepository(db *pgxpool.Pool) *ScheduledEmailRepository {
	return &ScheduledEmailRepository{db: db}
}

// Create persists one deferred send for a single recipient identifier.
func (r *ScheduledEmailRepository) Create(ctx context.Context, e *model.ScheduledEmail) error {
	query := `
        INSERT INTO scheduled_emails
            (from_role, to_email, subject, body, content_type, attachments, template_name, scheduled_at, is_sent, created_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, false, NOW())
    `
	_, err := r.db.Exec(ctx, query,
		e.FromRole,
		e.ToEmail,
		e.Subject,
		e.Body,
		e.ContentType,
		strings.Join(e.Attachments, ","),
		e.TemplateName,
		e.ScheduledAt,
	)
	return err
}

// ListDue returns unsent entries whose due time has passed.
func (r *ScheduledEmailRepository) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledEmail, error) {
	query := `
        SELECT id, from_role, to_email, subject, body, content_type,
               COALESCE(attachments, ''), COALESCE(template_name, ''),
               scheduled_at, is_sent, created_at
        FROM scheduled_emails
        WHERE scheduled_at <= $1 AND is_sent = false
        ORDER BY scheduled_at
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.ScheduledEmail{}
	for rows.Next() {
		var e model.ScheduledEmail
		var attachments string
		if err := rows.Scan(
			&e.ID,
			&e.FromRole,
			&e.ToEmail,
			&e.Subject,
			&e.Body,
			&e.ContentType,
			&attachments,
			&e.TemplateName,
			&e.ScheduledAt,
			&e.IsSent,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if attachments != "" {
			e.Attachments = strings.Split(attachments, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSent flips is_sent exactly once; a row already marked stays put.
func (r *ScheduledEmailRepository) MarkSent(ctx context.Context, id int) error {
	query := `
        UPDATE scheduled_emails
        SET is_sent = true
        WHERE id = $1 AND is_sent = false
    `
	_, err := r.db.Exec(ctx, query, id)
	return err
}
