package rbac

import "context"

// Store persists roles and users. The Manager is the only intended
// caller; it injects a Store at construction and never swallows backend
// errors.
//
// Absence is not an error: GetRole and GetUser return (nil, nil) for
// unknown ids, and DeleteRole and DeleteUser are no-ops for absent
// records. StoreRole and StoreUser upsert by ID. Implementations must be
// safe for concurrent use and must not cascade deletes: removing a role
// leaves users that list it untouched.
type Store interface {
	// Initialize prepares the backend (connections, schema). It must be
	// safe to call more than once.
	Initialize(ctx context.Context) error
	// Close releases backend resources.
	Close() error

	StoreRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]*Role, error)

	StoreUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)
}
