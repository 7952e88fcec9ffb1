package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPermission(t *testing.T) {
	for _, role := range []string{RoleOwner, RoleAdmin, RoleMember} {
		t.Run(role, func(t *testing.T) {
			assert.NoError(t, CheckPermission(1, role, PermissionConfirmProposal))
			assert.NoError(t, CheckPermission(1, role, PermissionCreateSubmission))
		})
	}

	t.Run("unknown role is denied", func(t *testing.T) {
		err := CheckPermission(9, "guest", PermissionPostMessage)
		require.Error(t, err)

		var denied *PermissionDeniedError
		require.True(t, errors.As(err, &denied))
		assert.Equal(t, int64(9), denied.UserID)
		assert.Equal(t, PermissionPostMessage, denied.Permission)
	})
}
