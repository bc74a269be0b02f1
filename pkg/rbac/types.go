package rbac

import (
	"fmt"
	"time"
)

// ConditionType selects the data scope a condition is evaluated against
type ConditionType string

const (
	// ConditionUser evaluates against the user's attributes
	ConditionUser ConditionType = "user"
	// ConditionResource evaluates against the resource's attributes
	ConditionResource ConditionType = "resource"
	// ConditionContext evaluates against the full evaluation context,
	// including ambient attributes supplied per call
	ConditionContext ConditionType = "context"
	// ConditionFunction delegates to a registered predicate
	ConditionFunction ConditionType = "function"
	// ConditionExpression evaluates a compiled expression
	ConditionExpression ConditionType = "expression"
)

// Operator represents a comparison operator used by field conditions
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorGt       Operator = "gt"
	OperatorGte      Operator = "gte"
	OperatorLt       Operator = "lt"
	OperatorLte      Operator = "lte"
	OperatorIn       Operator = "in"
	OperatorNin      Operator = "nin"
	OperatorContains Operator = "contains"
	OperatorRegex    Operator = "regex"
)

// PredicateFunc is a custom predicate invoked by function conditions.
// Predicates must be pure with respect to the evaluation context: the
// engine may skip calls when the structural match already failed.
type PredicateFunc func(ec *EvalContext) bool

// Condition is a predicate attached to a permission and evaluated at
// decision time. Field and Operator are required for the user, resource
// and context types; function conditions require either a registered
// Function name or an inline Func; expression conditions require
// Expression. Func never serializes, so conditions that must survive a
// storage round trip should reference a registered name instead.
type Condition struct {
	Type       ConditionType `json:"type"`
	Field      string        `json:"field,omitempty"`
	Operator   Operator      `json:"operator,omitempty"`
	Value      interface{}   `json:"value,omitempty"`
	Function   string        `json:"function,omitempty"`
	Expression string        `json:"expression,omitempty"`
	Func       PredicateFunc `json:"-"`
}

// Validate checks the condition's shape invariants
func (c *Condition) Validate() error {
	switch c.Type {
	case ConditionUser, ConditionResource, ConditionContext:
		if c.Field == "" {
			return fmt.Errorf("%w: %s condition requires a field", ErrInvalidPermission, c.Type)
		}
		if c.Operator == "" {
			return fmt.Errorf("%w: %s condition requires an operator", ErrInvalidPermission, c.Type)
		}
	case ConditionFunction:
		if c.Function == "" && c.Func == nil {
			return fmt.Errorf("%w: function condition requires a function name or predicate", ErrInvalidPermission)
		}
	case ConditionExpression:
		if c.Expression == "" {
			return fmt.Errorf("%w: expression condition requires an expression", ErrInvalidPermission)
		}
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrInvalidPermission, c.Type)
	}
	return nil
}

// Permission grants an action on a resource type, optionally gated by a
// condition. Permissions have no identity of their own; they exist only
// inside the Role or User that carries them. Attributes lists the fields
// the grant covers and is carried through untouched for callers that
// implement field-level filtering.
type Permission struct {
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	Condition    *Condition `json:"condition,omitempty"`
	Attributes   []string   `json:"attributes,omitempty"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return p.ResourceType + ":" + p.Action
}

// Matches reports whether the permission covers the requested action and
// resource type. Matching is exact string equality on both fields; there
// are no wildcards or prefixes.
func (p Permission) Matches(action, resourceType string) bool {
	return p.Action == action && p.ResourceType == resourceType
}

// Validate checks the permission's shape invariants
func (p *Permission) Validate() error {
	if p.Action == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidPermission)
	}
	if p.ResourceType == "" {
		return fmt.Errorf("%w: missing resource type", ErrInvalidPermission)
	}
	if p.Condition != nil {
		return p.Condition.Validate()
	}
	return nil
}

// Role is a named collection of permissions. ParentRoles lists role IDs
// whose permissions this role inherits when hierarchy enforcement is on.
// Roles are upserted whole: AddRole with an existing ID replaces the
// stored role.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	ParentRoles []string     `json:"parent_roles,omitempty"`
}

// Validate checks the role's shape invariants
func (r *Role) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: role is nil", ErrInvalidRole)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRole)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: role %q missing name", ErrInvalidRole, r.ID)
	}
	for i := range r.Permissions {
		if err := r.Permissions[i].Validate(); err != nil {
			return fmt.Errorf("role %q permission %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// User is a principal: assigned role IDs, optional direct permission
// grants checked before any role, and an open attribute bag that
// user-scoped conditions inspect via dot paths.
type User struct {
	ID          string                 `json:"id"`
	Roles       []string               `json:"roles"`
	Permissions []Permission           `json:"permissions,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// Validate checks the user's shape invariants
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidUser)
	}
	if u.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidUser)
	}
	for i := range u.Permissions {
		if err := u.Permissions[i].Validate(); err != nil {
			return fmt.Errorf("user %q permission %d: %w", u.ID, i, err)
		}
	}
	return nil
}

// UserPatch is a partial update applied by UpdateUser. Nil Roles or
// Permissions keep the stored values; non-nil values replace them
// wholesale, so an empty non-nil slice clears. Attributes merge key by
// key over the stored bag, last write wins.
type UserPatch struct {
	Roles       []string               `json:"roles,omitempty"`
	Permissions []Permission           `json:"permissions,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// Resource identifies the target of a decision. It is supplied by the
// caller per check and never stored. Attributes carries the fields that
// resource-scoped conditions inspect.
type Resource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EvalContext is the ephemeral evaluation context assembled for a single
// decision. Env carries ambient attributes such as time of day or request
// origin for context-scoped conditions.
type EvalContext struct {
	User     *User
	Action   string
	Resource Resource
	Env      map[string]interface{}
}

// Check is one action/resource pair in a CanAll or CanAny batch
type Check struct {
	Action   string                 `json:"action"`
	Resource Resource               `json:"resource"`
	Env      map[string]interface{} `json:"context,omitempty"`
}

// Decision is the outcome of a permission check. Denials are results, not
// errors: asking about an unknown user or an unmatched action yields an
// Allowed=false Decision with a Reason, never an error.
type Decision struct {
	Allowed      bool         `json:"allowed"`
	Reason       string       `json:"reason,omitempty"`
	Applicable   []Permission `json:"applicable_permissions,omitempty"`
	MatchedRoles []string     `json:"matched_roles,omitempty"`
	CheckedAt    time.Time    `json:"checked_at"`
}
