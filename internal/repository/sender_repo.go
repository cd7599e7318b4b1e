package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type SenderAccountRepository struct {
	db *pgxpool.Pool
}

func NewSenderAccountRepository(db *pgxpool.Pool) *SenderAccountRepository {
	return &SenderAccountRepository{db: db}
}

// FindByRole returns the relay account configured for a sender role.
func (r *SenderAccountRepository) FindByRole(ctx context.Context, role string) (*model.SenderAccount, error) {
	query := `
        SELECT id, role, email, token, is_admin
        FROM sender_accounts
        WHERE role = $1
        LIMIT 1
    `
	var a model.SenderAccount
	err := r.db.QueryRow(ctx, query, role).Scan(
		&a.ID,
		&a.Role,
		&a.Email,
		&a.Token,
		&a.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAdmin returns the account that receives failure reports.
func (r *SenderAccountRepository) FindAdmin(ctx context.Context) (*model.SenderAccount, error) {
	query := `
        SELECT id, role, email, token, is_admin
        FROM sender_accounts
        WHERE is_admin = true
        LIMIT 1
    `
	var a model.SenderAccount
	err := r.db.QueryRow(ctx, query).Scan(
		&a.ID,
		&a.Role,
		&a.Email,
		&a.Token,
		&a.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
