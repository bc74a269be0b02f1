// Package sqlstore persists roles and users in a SQL database through
// database/sql. The schema and queries stay inside the dialect both
// github.com/lib/pq and github.com/mattn/go-sqlite3 accept, so the same
// store runs against PostgreSQL in production and an in-memory SQLite
// database in tests. Permission lists, parent role lists and attribute
// bags are stored as JSON text columns; inline Func predicates do not
// survive serialization, so function conditions persist by registered
// name only.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// Store implements rbac.Store over a *sql.DB
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewStore wraps an open database handle. The store takes ownership of
// the handle: Close closes it.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logrus.New()}
}

// Open opens a database by driver name and DSN and verifies the
// connection before handing back a store.
func Open(driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(db), nil
}

// SetLogger replaces the logger used for migration progress
func (s *Store) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Initialize runs pending schema migrations. Re-running is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.logger)
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreRole upserts a role by ID
func (s *Store) StoreRole(ctx context.Context, role *rbac.Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	parentsJSON, err := json.Marshal(role.ParentRoles)
	if err != nil {
		return fmt.Errorf("failed to marshal parent roles: %w", err)
	}

	query := `
		INSERT INTO ratchet_roles (id, name, description, permissions, parent_roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			permissions = excluded.permissions,
			parent_roles = excluded.parent_roles,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		string(permissionsJSON),
		string(parentsJSON),
	); err != nil {
		return fmt.Errorf("failed to store role: %w", err)
	}
	return nil
}

// GetRole retrieves a role, or (nil, nil) when no role has that ID
func (s *Store) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	query := `
		SELECT id, name, description, permissions, parent_roles
		FROM ratchet_roles
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	role, err := scanRole(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// DeleteRole removes a role. Deleting an unknown role is a no-op.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM ratchet_roles WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// ListRoles returns all stored roles ordered by ID
func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	query := `
		SELECT id, name, description, permissions, parent_roles
		FROM ratchet_roles
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// StoreUser upserts a user by ID
func (s *Store) StoreUser(ctx context.Context, user *rbac.User) error {
	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	permissionsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	attributesJSON, err := json.Marshal(user.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO ratchet_users (id, roles, permissions, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			roles = excluded.roles,
			permissions = excluded.permissions,
			attributes = excluded.attributes,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		user.ID,
		string(rolesJSON),
		string(permissionsJSON),
		string(attributesJSON),
	); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// GetUser retrieves a user, or (nil, nil) when no user has that ID
func (s *Store) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	query := `
		SELECT id, roles, permissions, attributes
		FROM ratchet_users
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	user, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM ratchet_users WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ListUsers returns all stored users ordered by ID
func (s *Store) ListUsers(ctx context.Context) ([]*rbac.User, error) {
	query := `
		SELECT id, roles, permissions, attributes
		FROM ratchet_users
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*rbac.User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func scanRole(scan func(dest ...interface{}) error) (*rbac.Role, error) {
	var role rbac.Role
	var description sql.NullString
	var permissionsJSON, parentsJSON string

	if err := scan(&role.ID, &role.Name, &description, &permissionsJSON, &parentsJSON); err != nil {
		return nil, err
	}
	role.Description = description.String
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(parentsJSON), &role.ParentRoles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parent roles: %w", err)
	}
	return &role, nil
}

func scanUser(scan func(dest ...interface{}) error) (*rbac.User, error) {
	var user rbac.User
	var rolesJSON, permissionsJSON, attributesJSON string

	if err := scan(&user.ID, &rolesJSON, &permissionsJSON, &attributesJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rolesJSON), &user.Roles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &user.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(attributesJSON), &user.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}
	return &user, nil
}
