// Package access resolves a caller's group role and checks it against rbac.
package access

import (
	"context"
	"fmt"

	"studyhub/internal/model"
	"studyhub/pkg/rbac"
)

type MembershipStore interface {
	GetMembership(ctx context.Context, groupID, userID int64) (model.Membership, error)
}

type Authorizer struct {
	members MembershipStore
}

func NewAuthorizer(members MembershipStore) *Authorizer {
	return &Authorizer{members: members}
}

// Require returns model.ErrNotMember for outsiders and an error wrapping
// both model.ErrForbidden and *rbac.PermissionDeniedError when the role
// lacks permission.
func (a *Authorizer) Require(ctx context.Context, groupID, userID int64, permission string) (model.Membership, error) {
	m, err := a.members.GetMembership(ctx, groupID, userID)
	if err != nil {
		return model.Membership{}, err
	}
	if err := rbac.CheckPermission(userID, m.Role, permission); err != nil {
		return model.Membership{}, fmt.Errorf("%w: %w", model.ErrForbidden, err)
	}
	return m, nil
}
