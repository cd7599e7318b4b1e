package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type DeliveryRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryRepository(db *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// CreateLog appends one delivery record and returns its generated id.
func (r *DeliveryRepository) CreateLog(ctx context.Context, l *model.DeliveryLog) (int, error) {
	query := `
        INSERT INTO email_logs (from_email, to_email, subject, body, sent_at, status, error_message)
        VALUES ($1, $2, $3, $4, NOW(), $5, NULLIF($6, ''))
        RETURNING log_id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		l.FromEmail,
		l.ToEmail,
		l.Subject,
		l.Body,
		l.Status,
		l.ErrorMessage,
	).Scan(&id)
	return id, err
}

// CreateStatus creates the tracking row paired with a sent log.
func (r *DeliveryRepository) CreateStatus(ctx context.Context, s *model.DeliveryStatus) error {
	query := `
        INSERT INTO email_status (email_log_id, from_email, to_email, sent, tracking_id, opened, view_count)
        VALUES ($1, $2, $3, $4, $5, false, 0)
    `
	_, err := r.db.Exec(ctx, query,
		s.EmailLogID,
		s.FromEmail,
		s.ToEmail,
		s.Sent,
		s.TrackingID,
	)
	return err
}

// FindStatusByTracking looks up the tracking row for a pixel token.
func (r *DeliveryRepository) FindStatusByTracking(ctx context.Context, trackingID string) (*model.DeliveryStatus, error) {
	query := `
        SELECT id, email_log_id, from_email, to_email, sent, tracking_id, opened, opened_at, view_count
        FROM email_status
        WHERE tracking_id = $1
        LIMIT 1
    `
	var s model.DeliveryStatus
	err := r.db.QueryRow(ctx, query, trackingID).Scan(
		&s.ID,
		&s.EmailLogID,
		&s.FromEmail,
		&s.ToEmail,
		&s.Sent,
		&s.TrackingID,
		&s.Opened,
		&s.OpenedAt,
		&s.ViewCount,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementViews bumps the pixel view counter unconditionally.
func (r *DeliveryRepository) IncrementViews(ctx context.Context, id int) error {
	query := `
        UPDATE email_status
        SET view_count = view_count + 1
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// MarkOpened flips the opened flag. The WHERE guard keeps opened_at
// from being rewritten by a concurrent or repeated fetch.
func (r *DeliveryRepository) MarkOpened(ctx context.Context, id int, at time.Time) error {
	query := `
        UPDATE email_status
        SET opened = true, opened_at = $1
        WHERE id = $2 AND opened = false
    `
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}

// ListLogs returns the most recent delivery records for reporting.
func (r *DeliveryRepository) ListLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error) {
	query := `
        SELECT log_id, from_email, to_email, subject, body, sent_at, status, COALESCE(error_message, '')
        FROM email_logs
        ORDER BY sent_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.DeliveryLog{}
	for rows.Next() {
		var l model.DeliveryLog
		if err := rows.Scan(
			&l.LogID,
			&l.FromEmail,
			&l.ToEmail,
			&l.Subject,
			&l.Body,
			&l.SentAt,
			&l.Status,
			&l.ErrorMessage,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
