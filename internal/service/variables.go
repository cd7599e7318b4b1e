package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// VariableResolver builds the per-member template variable bag: the
// member's own fields flattened together with class_name and
// class_description derived from its group.
type VariableResolver struct {
	groups GroupDirectory
	logger *zap.Logger
}

func NewVariableResolver(groups GroupDirectory, logger *zap.Logger) *VariableResolver {
	return &VariableResolver{groups: groups, logger: logger}
}

func (v *VariableResolver) FetchTemplateVariables(ctx context.Context, usn string) (map[string]string, error) {
	member, group, err := v.groups.FindMemberWithGroup(ctx, usn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			v.logger.Warn("Member code not found for variable binding",
				zap.String("usn", usn),
			)
			return nil, fmt.Errorf("member %q not found", usn)
		}
		return nil, fmt.Errorf("fetch variables for %q: %w", usn, err)
	}

	variables := map[string]string{
		"usn":               member.USN,
		"email":             member.Email,
		"group_id":          member.GroupID,
		"class_name":        group.Name,
		"class_description": group.Description,
	}

	v.logger.Debug("Resolved template variables",
		zap.String("usn", usn),
		zap.String("class_name", group.Name),
	)
	return variables, nil
}
