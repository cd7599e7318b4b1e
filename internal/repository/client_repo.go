package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type ServiceClientRepository struct {
	db *pgxpool.Pool
}

func NewServiceClientRepository(db *pgxpool.Pool) *ServiceClientRepository {
	return &ServiceClientRepository{db: db}
}

// FindActiveByToken authenticates a send-API caller.
func (r *ServiceClientRepository) FindActiveByToken(ctx context.Context, token string) (*model.ServiceClient, error) {
	query := `
        SELECT user_id, service_name, api_token, is_active, created_at
        FROM service_clients
        WHERE api_token = $1 AND is_active = true
        LIMIT 1
    `
	var c model.ServiceClient
	err := r.db.QueryRow(ctx, query, token).Scan(
		&c.UserID,
		&c.ServiceName,
		&c.APIToken,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
