package rbac

import "fmt"

// 权限常量
const (
	PermissionPostMessage      = "chat:post"
	PermissionConfirmProposal  = "proposal:confirm"
	PermissionCreateSubmission = "submission:create"
	PermissionReadEvents       = "events:read"
)

// 组内角色
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var memberPermissions = []string{
	PermissionPostMessage,
	PermissionConfirmProposal,
	PermissionCreateSubmission,
	PermissionReadEvents,
}

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleOwner:  memberPermissions,
	RoleAdmin:  memberPermissions,
	RoleMember: memberPermissions,
}

// HasPermission 检查组内角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns *PermissionDeniedError when role lacks permission.
func CheckPermission(userID int64, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("user %d with role %q lacks %s", e.UserID, e.Role, e.Permission)
}
