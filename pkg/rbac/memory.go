package rbac

import (
	"context"
	"sync"
)

// MemoryStore is the reference Store implementation and the default when
// no backend is configured. It keeps deep copies of every record so
// callers cannot mutate stored state through pointers they pass in or
// get back. List order is unspecified.
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
	users map[string]*User
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles: make(map[string]*Role),
		users: make(map[string]*User),
	}
}

// Initialize implements Store. It is a no-op for the in-memory store.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// Close implements Store. It is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// StoreRole upserts a role by ID
func (s *MemoryStore) StoreRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = cloneRole(role)
	return nil
}

// GetRole returns the role or (nil, nil) when absent
func (s *MemoryStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, nil
	}
	return cloneRole(role), nil
}

// DeleteRole removes a role. Deleting an unknown role is a no-op.
func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	return nil
}

// ListRoles returns all stored roles
func (s *MemoryStore) ListRoles(ctx context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, cloneRole(role))
	}
	return roles, nil
}

// StoreUser upserts a user by ID
func (s *MemoryStore) StoreUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUser returns the user or (nil, nil) when absent
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

// ListUsers returns all stored users
func (s *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	return users, nil
}

func cloneRole(role *Role) *Role {
	if role == nil {
		return nil
	}
	out := *role
	out.Permissions = clonePermissions(role.Permissions)
	out.ParentRoles = cloneStrings(role.ParentRoles)
	return &out
}

func cloneUser(user *User) *User {
	if user == nil {
		return nil
	}
	out := *user
	out.Roles = cloneStrings(user.Roles)
	out.Permissions = clonePermissions(user.Permissions)
	if user.Attributes != nil {
		out.Attributes = cloneValue(user.Attributes).(map[string]interface{})
	}
	return &out
}

// cloneStrings copies a string slice, preserving nil versus empty
func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePermissions(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = p
		if p.Condition != nil {
			cond := *p.Condition
			cond.Value = cloneValue(cond.Value)
			out[i].Condition = &cond
		}
		out[i].Attributes = cloneStrings(p.Attributes)
	}
	return out
}

// cloneValue deep-copies the JSON-shaped part of a value: nested maps and
// slices are copied, everything else is shared as-is.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
