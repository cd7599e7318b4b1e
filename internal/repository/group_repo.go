package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/model"
)

type GroupRepository struct {
	db *pgxpool.Pool
}

func NewGroupRepository(db *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindGroupByName resolves a wildcard prefix to its group.
func (r *GroupRepository) FindGroupByName(ctx context.Context, name string) (*model.Group, error) {
	query := `
        SELECT group_id, name, COALESCE(description, '')
        FROM email_groups
        WHERE name = $1
        LIMIT 1
    `
	var g model.Group
	err := r.db.QueryRow(ctx, query, name).Scan(&g.GroupID, &g.Name, &g.Description)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListAllMembers returns every known member, for broadcast resolution.
func (r *GroupRepository) ListAllMembers(ctx context.Context) ([]model.GroupMember, error) {
	query := `
        SELECT group_id, usn, email
        FROM group_members
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMembers(rows)
}

// ListMembersByGroup returns the members of one group.
func (r *GroupRepository) ListMembersByGroup(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	query := `
        SELECT group_id, usn, email
        FROM group_members
        WHERE group_id = $1
    `
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMembers(rows)
}

// FindMemberByUSN looks up a single member code.
func (r *GroupRepository) FindMemberByUSN(ctx context.Context, usn string) (*model.GroupMember, error) {
	query := `
        SELECT group_id, usn, email
        FROM group_members
        WHERE usn = $1
        LIMIT 1
    `
	var m model.GroupMember
	err := r.db.QueryRow(ctx, query, usn).Scan(&m.GroupID, &m.USN, &m.Email)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMemberWithGroup fetches a member and its group in a single query,
// for template variable binding.
func (r *GroupRepository) FindMemberWithGroup(ctx context.Context, usn string) (*model.GroupMember, *model.Group, error) {
	query := `
        SELECT
            m.group_id,
            m.usn,
            m.email,
            g.group_id,
            g.name,
            COALESCE(g.description, '')
        FROM group_members m
        JOIN email_groups g ON m.group_id = g.group_id
        WHERE m.usn = $1
        LIMIT 1
    `
	var m model.GroupMember
	var g model.Group
	err := r.db.QueryRow(ctx, query, usn).Scan(
		&m.GroupID,
		&m.USN,
		&m.Email,
		&g.GroupID,
		&g.Name,
		&g.Description,
	)
	if err != nil {
		return nil, nil, err
	}
	return &m, &g, nil
}

func scanMembers(rows pgx.Rows) ([]model.GroupMember, error) {
	members := []model.GroupMember{}
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.GroupID, &m.USN, &m.Email); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
