package rbac

import "errors"

var (
	// ErrInvalidRole is returned when a role fails shape validation
	ErrInvalidRole = errors.New("rbac: invalid role")

	// ErrInvalidUser is returned when a user fails shape validation
	ErrInvalidUser = errors.New("rbac: invalid user")

	// ErrInvalidPermission is returned when a permission or its condition
	// fails shape validation
	ErrInvalidPermission = errors.New("rbac: invalid permission")

	// ErrRoleNotFound is returned when an operation requires a role that
	// does not exist
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrUserNotFound is returned when an operation requires a user that
	// does not exist
	ErrUserNotFound = errors.New("rbac: user not found")

	// ErrRoleCycle is returned when role hierarchy resolution detects a
	// cycle in parent role references
	ErrRoleCycle = errors.New("rbac: role hierarchy cycle")
)
