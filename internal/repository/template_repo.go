package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindByName returns the registered template for a name.
func (r *TemplateRepository) FindByName(ctx context.Context, name string) (*model.EmailTemplate, error) {
	query := `
        SELECT id, name, file_path, COALESCE(description, '')
        FROM email_templates
        WHERE name = $1
        LIMIT 1
    `
	var t model.EmailTemplate
	err := r.db.QueryRow(ctx, query, name).Scan(&t.ID, &t.Name, &t.FilePath, &t.Description)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
