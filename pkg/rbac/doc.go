// Package rbac implements a fine-grained, condition-aware role-based
// access control engine.
//
// # Overview
//
// The engine answers one question: may this user perform this action on
// this resource, right now, given everything we know about the user, the
// resource and the request? Permissions name an action and a resource
// type and optionally carry a condition that inspects user attributes,
// resource attributes, the ambient request context, a registered Go
// predicate, or an expression. Roles group permissions and may inherit
// from parent roles. Users hold roles, direct permissions, and an
// attribute bag that conditions can reference.
//
// # Architecture
//
// Five pieces make up the engine:
//
//  1. Permissions: action + resource type + optional condition
//  2. Roles: named permission sets with optional parent roles
//  3. Users: role assignments, direct permissions, attributes
//  4. Store: pluggable persistence (memory, SQL, Redis)
//  5. Manager: the façade that evaluates decisions and mutates state
//
// # Getting Started
//
// The zero-configuration path uses in-memory storage:
//
//	mgr := rbac.New(nil)
//	defer mgr.Close()
//
//	mgr.AddRole(ctx, &rbac.Role{
//		ID:   "editor",
//		Name: "Editor",
//		Permissions: []rbac.Permission{
//			{Action: "read", ResourceType: "article"},
//			{Action: "update", ResourceType: "article"},
//		},
//	})
//	mgr.AddUser(ctx, &rbac.User{ID: "alice", Roles: []string{"editor"}})
//
//	decision, err := mgr.Can(ctx, "alice", "update", rbac.Resource{Type: "article", ID: "a-1"})
//	if err != nil {
//		// storage failure or role cycle, not a denial
//	}
//	if decision.Allowed {
//		fmt.Println(decision.Reason) // `granted by role "editor"`
//	}
//
// Denials are Decision values with Allowed false, never errors. Errors
// are reserved for infrastructure failures and role cycles, so the call
// site can always distinguish "no" from "broken".
//
// # Conditions
//
// A permission without a condition grants unconditionally. With a
// condition, the grant applies only when the condition holds:
//
//	// Users may update only articles they own.
//	perm := rbac.Permission{
//		Action:       "update",
//		ResourceType: "article",
//		Condition: &rbac.Condition{
//			Type:     rbac.ConditionExpression,
//			Expression: "resource.owner_id == user.id",
//		},
//	}
//
// Condition types select what the Field path resolves against:
//
//	ConditionUser        - the user's attribute bag plus id and roles
//	ConditionResource    - the resource's attribute bag plus type and id
//	ConditionContext     - ambient env keys plus user, action, resource
//	ConditionFunction    - a registered Go predicate, by name
//	ConditionExpression  - an expr-lang expression over the context view
//
// Field paths use dots to traverse nested maps: "department",
// "user.clearance.level", "resource.labels.env". Operators are eq, ne,
// gt, gte, lt, lte, in, nin, contains and regex. A missing field
// satisfies only ne and nin; every other operator denies. Evaluation is
// fail-closed throughout: unknown operators, type mismatches, bad regex
// patterns, unregistered functions, panicking predicates and failing
// expressions all evaluate to false rather than erroring.
//
// Go predicates register on the manager and are referenced by name:
//
//	mgr.RegisterFunction("during_business_hours", func(ec *rbac.EvalContext) bool {
//		t, ok := ec.Env["request_time"].(time.Time)
//		return ok && t.Hour() >= 9 && t.Hour() < 17
//	})
//
// Conditions may also carry an inline Func. Inline predicates never
// survive serialization; storage-backed deployments should register
// named functions instead.
//
// # Decision Semantics
//
// Can scans the user's direct permissions first, then each assigned
// role's permissions in assignment order, each role resolved through its
// hierarchy. The first permission whose action and resource type match
// exactly and whose condition holds decides the outcome. There is no
// specificity ranking and no deny rule: ordering is the only tiebreaker,
// and anything not granted is denied.
//
// Matching is exact string equality on action and resource type. There
// are no wildcards; "admin can do everything" is expressed by
// enumerating permissions or by a function condition.
//
// CanAll and CanAny batch checks conjunctively and disjunctively:
//
//	decision, err := mgr.CanAll(ctx, "alice", []rbac.Check{
//		{Action: "read", Resource: rbac.Resource{Type: "article", ID: "a-1"}},
//		{Action: "update", Resource: rbac.Resource{Type: "article", ID: "a-1"}},
//	})
//
// CanAll returns the first failing check's decision unchanged; CanAny
// returns the first succeeding one. An empty batch is allowed for CanAll
// and denied for CanAny.
//
// # Role Hierarchy
//
// Roles inherit permissions from parent roles:
//
//	mgr.AddRole(ctx, &rbac.Role{ID: "viewer", Permissions: readPerms})
//	mgr.AddRole(ctx, &rbac.Role{
//		ID:          "editor",
//		ParentRoles: []string{"viewer"},
//		Permissions: writePerms,
//	})
//
// Resolution is depth-first: a role's own permissions come before its
// parents', parents expand in declaration order, and nothing is
// deduplicated. A cycle in the hierarchy fails the decision with
// ErrRoleCycle naming the chain; cycles are configuration bugs and
// surfacing them beats silently skipping records. Unknown parent roles
// and unknown assigned roles are skipped, so deleting a role never
// breaks decisions for users that still reference it.
//
// Hierarchy expansion is on by default and can be disabled:
//
//	cfg := rbac.DefaultConfig()
//	cfg.EnforceHierarchicalRoles = false
//	mgr := rbac.New(cfg)
//
// # Caching
//
// The decision cache is off by default. When enabled it memoizes boolean
// outcomes keyed by (user, action, resource type, resource ID):
//
//	cfg := rbac.DefaultConfig()
//	cfg.CachePermissions = true
//	cfg.CacheSize = 10000
//	cfg.CacheTTL = time.Minute
//	mgr := rbac.New(cfg)
//
// Conditions over mutable state make cached decisions potentially stale,
// which is why caching is opt-in. Every mutation through the manager
// invalidates the whole cache by bumping a generation counter baked into
// the keys. Writes that bypass the manager, such as another process
// sharing the storage backend, require an explicit ClearCache. Cache
// hits return Reason "cached result" without Applicable or MatchedRoles,
// since only the boolean was memoized. Unknown-user denials are never
// cached: the user load happens before the cache lookup, so a user
// created after a denial is visible immediately.
//
// # Storage Backends
//
// The Store interface persists roles and users. Three implementations
// ship with the engine:
//
//	rbac.NewMemoryStore()     - in-process maps, the default
//	sqlstore.New(db)          - PostgreSQL or SQLite via database/sql
//	redisstore.New(cfg)       - Redis with JSON values
//
// Absent records are (nil, nil), not errors; deleting an absent record
// is a no-op; storing an existing ID replaces the record. Custom
// backends only need those semantics plus concurrency safety:
//
//	cfg := rbac.DefaultConfig()
//	cfg.Storage = myStore
//	mgr := rbac.New(cfg)
//
// The manager initializes storage lazily on first use; call Initialize
// to surface connection errors eagerly.
//
// # Observability
//
// Pass a Metrics value to collect Prometheus counters and histograms for
// decisions and cache traffic:
//
//	registry := prometheus.NewRegistry()
//	cfg := rbac.DefaultConfig()
//	cfg.Metrics = rbac.NewMetrics(registry)
//
// Every Can call opens an "rbac.can" trace span with the user, action,
// resource type and outcome as attributes. Evaluator diagnostics, such
// as conditions denied for type mismatches, log at debug level on the
// configured logrus logger.
//
// # Design Decisions
//
// First Match Over Specificity: permission order is the only tiebreaker.
// Specificity ranking makes outcomes depend on subtle rules that authors
// rarely predict; declaration order is visible in the data.
//
// Fail-Closed Evaluation: malformed conditions deny instead of erroring.
// An authorization engine that errors on bad data turns every typo in a
// role definition into an outage; one that fails open turns it into a
// breach.
//
// Denials Are Values: Can returns (Decision, error) where the error is
// only ever infrastructure. Callers never need to string-match errors to
// tell a denial from a down database.
//
// Whole-Cache Invalidation: one role edit can change any user's access
// through the hierarchy, so per-user invalidation is unsound without
// dependency tracking. A generation counter makes full invalidation O(1)
// and superseded entries age out under LRU pressure.
//
// Cycles Fail Fast: inheritance cycles return ErrRoleCycle instead of
// being silently tolerated, so the broken role graph gets fixed instead
// of shifting decisions depending on traversal entry point.
//
// # Testing
//
// The in-memory store makes engine tests self-contained:
//
//	mgr := rbac.New(nil)
//	mgr.AddRole(ctx, role)
//	mgr.AddUser(ctx, user)
//	decision, err := mgr.Can(ctx, "alice", "read", resource)
//	require.NoError(t, err)
//	assert.True(t, decision.Allowed)
//
// Mock the Store interface to exercise storage failure paths. The
// sqlstore and redisstore packages carry their own test helpers for
// SQLite in-memory databases and miniredis.
//
// # Related Packages
//
//   - pkg/rbac/sqlstore: database/sql storage backend with migrations
//   - pkg/rbac/redisstore: Redis storage backend
//   - pkg/policyfile: YAML policy loading and hot reload
//   - pkg/httpapi: REST API over the manager
package rbac
