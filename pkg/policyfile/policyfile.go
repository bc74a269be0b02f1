// Package policyfile loads role and user definitions from YAML policy
// bundles and applies them through a rbac.Manager.
//
// A policy file is a declarative snapshot: applying it upserts every
// role and user it names, so repeated applies of the same file are
// idempotent. Roles are applied before users so that role references
// resolve on first load. Function conditions can name functions in the
// file but the predicates themselves must be registered on the Manager
// with RegisterFunction before a check evaluates them.
//
// Watcher reapplies a policy file whenever it changes on disk, keeping
// the last successfully applied policy when a reload fails.
package policyfile

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// Version is the policy file format version this package reads.
const Version = 1

// applyWorkers bounds the concurrent upserts per apply phase.
const applyWorkers = 8

// knownOperators lists the operators a policy file may name; Parse
// rejects anything else. The engine denies unknown operators at check
// time, which would turn a typo here into a permanent silent denial.
var knownOperators = map[rbac.Operator]bool{
	rbac.OperatorEq:       true,
	rbac.OperatorNe:       true,
	rbac.OperatorGt:       true,
	rbac.OperatorGte:      true,
	rbac.OperatorLt:       true,
	rbac.OperatorLte:      true,
	rbac.OperatorIn:       true,
	rbac.OperatorNin:      true,
	rbac.OperatorContains: true,
	rbac.OperatorRegex:    true,
}

// File is a parsed policy bundle.
type File struct {
	Version int        `yaml:"version"`
	Roles   []RoleSpec `yaml:"roles"`
	Users   []UserSpec `yaml:"users"`
}

// RoleSpec declares one role.
type RoleSpec struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	ParentRoles []string         `yaml:"parent_roles"`
	Permissions []PermissionSpec `yaml:"permissions"`
}

// PermissionSpec declares one permission grant.
type PermissionSpec struct {
	Action       string         `yaml:"action"`
	ResourceType string         `yaml:"resource_type"`
	Condition    *ConditionSpec `yaml:"condition"`
	Attributes   []string       `yaml:"attributes"`
}

// ConditionSpec declares a condition attached to a permission.
type ConditionSpec struct {
	Type       string      `yaml:"type"`
	Field      string      `yaml:"field"`
	Operator   string      `yaml:"operator"`
	Value      interface{} `yaml:"value"`
	Function   string      `yaml:"function"`
	Expression string      `yaml:"expression"`
}

// UserSpec declares one user.
type UserSpec struct {
	ID          string                 `yaml:"id"`
	Roles       []string               `yaml:"roles"`
	Permissions []PermissionSpec       `yaml:"permissions"`
	Attributes  map[string]interface{} `yaml:"attributes"`
}

// Load reads and parses a policy file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a policy bundle. Every role and user in
// the bundle is validated before Apply touches the engine, so a bad
// entry anywhere in the file rejects the whole bundle.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the bundle's version and validates every declared
// role and user.
func (f *File) Validate() error {
	if f.Version != Version {
		return fmt.Errorf("unsupported policy file version %d (want %d)", f.Version, Version)
	}
	seenRoles := make(map[string]bool, len(f.Roles))
	for i, spec := range f.Roles {
		if spec.ID != "" && seenRoles[spec.ID] {
			return fmt.Errorf("roles[%d]: duplicate role %q", i, spec.ID)
		}
		seenRoles[spec.ID] = true
		if err := spec.validate(); err != nil {
			return fmt.Errorf("roles[%d]: %w", i, err)
		}
	}
	seenUsers := make(map[string]bool, len(f.Users))
	for i, spec := range f.Users {
		if spec.ID != "" && seenUsers[spec.ID] {
			return fmt.Errorf("users[%d]: duplicate user %q", i, spec.ID)
		}
		seenUsers[spec.ID] = true
		if err := spec.validate(); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	return nil
}

func (s RoleSpec) validate() error {
	if err := s.toRole().Validate(); err != nil {
		return err
	}
	return validatePermissionSpecs(s.Permissions)
}

func (s UserSpec) validate() error {
	if err := s.toUser().Validate(); err != nil {
		return err
	}
	return validatePermissionSpecs(s.Permissions)
}

func validatePermissionSpecs(specs []PermissionSpec) error {
	for _, p := range specs {
		if p.Condition == nil || p.Condition.Operator == "" {
			continue
		}
		if !knownOperators[rbac.Operator(p.Condition.Operator)] {
			return fmt.Errorf("%w: unknown operator %q", rbac.ErrInvalidPermission, p.Condition.Operator)
		}
	}
	return nil
}

// Apply upserts the bundle's roles, then its users, through the
// manager. Each phase fans out across a bounded worker group; the
// first failure cancels the rest of its phase and aborts the apply.
func (f *File) Apply(ctx context.Context, manager *rbac.Manager) error {
	roles, rolesCtx := errgroup.WithContext(ctx)
	roles.SetLimit(applyWorkers)
	for _, spec := range f.Roles {
		spec := spec
		roles.Go(func() error {
			if err := manager.AddRole(rolesCtx, spec.toRole()); err != nil {
				return fmt.Errorf("role %q: %w", spec.ID, err)
			}
			return nil
		})
	}
	if err := roles.Wait(); err != nil {
		return fmt.Errorf("failed to apply roles: %w", err)
	}

	users, usersCtx := errgroup.WithContext(ctx)
	users.SetLimit(applyWorkers)
	for _, spec := range f.Users {
		spec := spec
		users.Go(func() error {
			if err := manager.AddUser(usersCtx, spec.toUser()); err != nil {
				return fmt.Errorf("user %q: %w", spec.ID, err)
			}
			return nil
		})
	}
	if err := users.Wait(); err != nil {
		return fmt.Errorf("failed to apply users: %w", err)
	}
	return nil
}

func (s RoleSpec) toRole() *rbac.Role {
	role := &rbac.Role{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		ParentRoles: s.ParentRoles,
	}
	if len(s.Permissions) > 0 {
		role.Permissions = make([]rbac.Permission, 0, len(s.Permissions))
		for _, p := range s.Permissions {
			role.Permissions = append(role.Permissions, p.toPermission())
		}
	}
	return role
}

func (s UserSpec) toUser() *rbac.User {
	user := &rbac.User{
		ID:         s.ID,
		Roles:      s.Roles,
		Attributes: s.Attributes,
	}
	if len(s.Permissions) > 0 {
		user.Permissions = make([]rbac.Permission, 0, len(s.Permissions))
		for _, p := range s.Permissions {
			user.Permissions = append(user.Permissions, p.toPermission())
		}
	}
	return user
}

func (s PermissionSpec) toPermission() rbac.Permission {
	perm := rbac.Permission{
		Action:       s.Action,
		ResourceType: s.ResourceType,
		Attributes:   s.Attributes,
	}
	if s.Condition != nil {
		perm.Condition = &rbac.Condition{
			Type:       rbac.ConditionType(s.Condition.Type),
			Field:      s.Condition.Field,
			Operator:   rbac.Operator(s.Condition.Operator),
			Value:      s.Condition.Value,
			Function:   s.Condition.Function,
			Expression: s.Condition.Expression,
		}
	}
	return perm
}
