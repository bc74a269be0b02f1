package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Can decides whether the user may perform the action on the resource.
// Denials come back as a Decision with Allowed false, never as an error;
// errors are reserved for storage failures and role cycles.
func (m *Manager) Can(ctx context.Context, userID, action string, resource Resource) (Decision, error) {
	return m.CanWithEnv(ctx, userID, action, resource, nil)
}

// CanWithEnv is Can with an ambient environment bag for context
// conditions and expressions, such as request time or client IP.
func (m *Manager) CanWithEnv(ctx context.Context, userID, action string, resource Resource, env map[string]interface{}) (Decision, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return Decision{}, err
	}

	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "rbac.can", trace.WithAttributes(
		attribute.String("rbac.user_id", userID),
		attribute.String("rbac.action", action),
		attribute.String("rbac.resource_type", resource.Type),
	))
	defer span.End()

	decision, source, err := m.decide(ctx, userID, action, resource, env)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	span.SetAttributes(attribute.Bool("rbac.allowed", decision.Allowed))
	m.metrics.recordDecision(decision.Allowed, source, time.Since(start))
	m.logger.Debugf("decision for user=%q action=%q resource=%s/%s: allowed=%t reason=%q",
		userID, action, resource.Type, resource.ID, decision.Allowed, decision.Reason)
	return decision, nil
}

// decide runs the decision algorithm: load the user, consult the cache,
// scan direct permissions, then scan role permissions in assignment
// order. First match wins; declaration order is the tiebreaker, not
// specificity. The user load comes before the cache so unknown-user
// denials are never memoized.
func (m *Manager) decide(ctx context.Context, userID, action string, resource Resource, env map[string]interface{}) (Decision, string, error) {
	now := time.Now().UTC()

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return Decision{}, "", err
	}
	if user == nil {
		return Decision{
			Allowed:   false,
			Reason:    fmt.Sprintf("user %q does not exist", userID),
			CheckedAt: now,
		}, "none", nil
	}

	var key string
	if m.cache != nil {
		key = m.cache.key(userID, action, resource.Type, resource.ID)
		if allowed, ok := m.cache.get(key); ok {
			m.metrics.recordCacheHit()
			return Decision{
				Allowed:   allowed,
				Reason:    "cached result",
				CheckedAt: now,
			}, "cache", nil
		}
		m.metrics.recordCacheMiss()
	}

	ec := &EvalContext{User: user, Action: action, Resource: resource, Env: env}

	// applicable accumulates the permissions whose action and resource
	// type matched, in scan order, up to the one that decided.
	var applicable []Permission
	for _, p := range user.Permissions {
		if !p.Matches(action, resource.Type) {
			continue
		}
		applicable = append(applicable, p)
		if p.Condition == nil || m.eval.evaluate(p.Condition, ec) {
			m.memoize(key, true)
			return Decision{
				Allowed:    true,
				Reason:     "granted by direct permission",
				Applicable: applicable,
				CheckedAt:  now,
			}, "direct", nil
		}
	}

	for _, roleID := range user.Roles {
		perms, err := m.resolvePermissions(ctx, roleID, nil)
		if err != nil {
			return Decision{}, "", err
		}
		for _, p := range perms {
			if !p.Matches(action, resource.Type) {
				continue
			}
			applicable = append(applicable, p)
			if p.Condition == nil || m.eval.evaluate(p.Condition, ec) {
				m.memoize(key, true)
				return Decision{
					Allowed:      true,
					Reason:       fmt.Sprintf("granted by role %q", roleID),
					Applicable:   applicable,
					MatchedRoles: []string{roleID},
					CheckedAt:    now,
				}, "role", nil
			}
		}
	}

	m.memoize(key, false)
	return Decision{
		Allowed:    false,
		Reason:     fmt.Sprintf("%s on %s not permitted", action, resource.Type),
		Applicable: applicable,
		CheckedAt:  now,
	}, "none", nil
}

func (m *Manager) memoize(key string, allowed bool) {
	if m.cache == nil || key == "" {
		return
	}
	m.cache.set(key, allowed)
}

// resolvePermissions collects a role's permissions depth-first: the
// role's own permissions, then each parent's in declaration order.
// Nothing is deduplicated, so a diamond hierarchy contributes the shared
// ancestor's permissions once per path; first match makes the duplicates
// harmless. The path argument carries the chain being expanded and turns
// revisits into ErrRoleCycle. Unknown roles resolve to no permissions.
func (m *Manager) resolvePermissions(ctx context.Context, roleID string, path []string) ([]Permission, error) {
	for _, seen := range path {
		if seen == roleID {
			return nil, fmt.Errorf("%w: %s", ErrRoleCycle, strings.Join(append(path, roleID), " -> "))
		}
	}

	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		m.logger.Debugf("skipping unknown role %q", roleID)
		return nil, nil
	}

	perms := append([]Permission(nil), role.Permissions...)
	if !m.config.EnforceHierarchicalRoles {
		return perms, nil
	}

	childPath := append(path, roleID)
	for _, parentID := range role.ParentRoles {
		parentPerms, err := m.resolvePermissions(ctx, parentID, childPath)
		if err != nil {
			return nil, err
		}
		perms = append(perms, parentPerms...)
	}
	return perms, nil
}

// CanAll decides a batch conjunctively: the first failing check's
// decision comes back unchanged. An empty batch is allowed.
func (m *Manager) CanAll(ctx context.Context, userID string, checks []Check) (Decision, error) {
	if len(checks) == 0 {
		return Decision{Allowed: true, Reason: "no checks requested", CheckedAt: time.Now().UTC()}, nil
	}
	for _, check := range checks {
		decision, err := m.CanWithEnv(ctx, userID, check.Action, check.Resource, check.Env)
		if err != nil {
			return Decision{}, err
		}
		if !decision.Allowed {
			return decision, nil
		}
	}
	return Decision{Allowed: true, Reason: "all checks passed", CheckedAt: time.Now().UTC()}, nil
}

// CanAny decides a batch disjunctively: the first succeeding check's
// decision comes back unchanged. An empty batch is denied.
func (m *Manager) CanAny(ctx context.Context, userID string, checks []Check) (Decision, error) {
	if len(checks) == 0 {
		return Decision{Allowed: false, Reason: "no checks requested", CheckedAt: time.Now().UTC()}, nil
	}
	for _, check := range checks {
		decision, err := m.CanWithEnv(ctx, userID, check.Action, check.Resource, check.Env)
		if err != nil {
			return Decision{}, err
		}
		if decision.Allowed {
			return decision, nil
		}
	}
	return Decision{Allowed: false, Reason: "none of the checks passed", CheckedAt: time.Now().UTC()}, nil
}

// GetUserPermissions returns every permission the user holds: each
// assigned role's permissions resolved through the hierarchy, followed
// by the user's direct permissions. Nothing is deduplicated.
func (m *Manager) GetUserPermissions(ctx context.Context, userID string) ([]Permission, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}

	perms := []Permission{}
	for _, roleID := range user.Roles {
		rolePerms, err := m.resolvePermissions(ctx, roleID, nil)
		if err != nil {
			return nil, err
		}
		perms = append(perms, rolePerms...)
	}
	perms = append(perms, user.Permissions...)
	return perms, nil
}
