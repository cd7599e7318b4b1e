package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mailroom/internal/model"
)

// GroupDirectory is the read-only reference data the resolver and the
// variable binder work against.
type GroupDirectory interface {
	FindGroupByName(ctx context.Context, name string) (*model.Group, error)
	ListAllMembers(ctx context.Context) ([]model.GroupMember, error)
	ListMembersByGroup(ctx context.Context, groupID string) ([]model.GroupMember, error)
	FindMemberByUSN(ctx context.Context, usn string) (*model.GroupMember, error)
	FindMemberWithGroup(ctx context.Context, usn string) (*model.GroupMember, *model.Group, error)
}

// RecipientResolver expands caller-supplied identifiers into concrete
// send targets: member codes and literal addresses. Unresolved entries
// are logged and skipped, never raised.
type RecipientResolver struct {
	groups GroupDirectory
	logger *zap.Logger
}

func NewRecipientResolver(groups GroupDirectory, logger *zap.Logger) *RecipientResolver {
	return &RecipientResolver{groups: groups, logger: logger}
}

// Resolve applies the per-identifier rules:
//
//	"*"        broadcast, every known member code
//	"name*"    all members of the group called name
//	has "@"    literal address, passed through
//	otherwise  member code, kept if it exists
//
// The result is de-duplicated. An empty result is the caller's
// "no valid recipients" condition, not an error here.
func (r *RecipientResolver) Resolve(ctx context.Context, identifiers []string) []string {
	r.logger.Info("Resolving recipient identifiers",
		zap.Int("count", len(identifiers)),
	)

	result := make(map[string]struct{})
	var groupsResolved, usersResolved, notFound int

	for _, raw := range identifiers {
		item := strings.TrimSpace(raw)

		switch {
		case item == "*":
			members, err := r.groups.ListAllMembers(ctx)
			if err != nil {
				notFound++
				r.logger.Error("Broadcast member listing failed", zap.Error(err))
				continue
			}
			for _, m := range members {
				result[m.USN] = struct{}{}
			}
			r.logger.Info("Broadcast resolved",
				zap.Int("members", len(members)),
			)

		case strings.HasSuffix(item, "*"):
			name := strings.TrimSuffix(item, "*")
			group, err := r.groups.FindGroupByName(ctx, name)
			if err != nil {
				notFound++
				r.logger.Warn("Group not found", zap.String("group", name))
				continue
			}
			members, err := r.groups.ListMembersByGroup(ctx, group.GroupID)
			if err != nil {
				notFound++
				r.logger.Error("Group member listing failed",
					zap.String("group", name),
					zap.Error(err),
				)
				continue
			}
			for _, m := range members {
				result[m.USN] = struct{}{}
			}
			groupsResolved++
			r.logger.Info("Group resolved",
				zap.String("group", name),
				zap.Int("members", len(members)),
			)

		case strings.Contains(item, "@"):
			result[item] = struct{}{}
			r.logger.Debug("Added direct address", zap.String("email", item))

		default:
			member, err := r.groups.FindMemberByUSN(ctx, item)
			if err != nil {
				notFound++
				r.logger.Warn("Member code not found", zap.String("usn", item))
				continue
			}
			result[member.USN] = struct{}{}
			usersResolved++
		}
	}

	resolved := make([]string, 0, len(result))
	for id := range result {
		resolved = append(resolved, id)
	}

	r.logger.Info("Resolution complete",
		zap.Int("groups", groupsResolved),
		zap.Int("users", usersResolved),
		zap.Int("not_found", notFound),
		zap.Int("resolved", len(resolved)),
	)
	return resolved
}
