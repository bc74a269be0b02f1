package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCacheSize is the decision cache capacity used when caching is
// enabled without an explicit size.
const DefaultCacheSize = 4096

// Config holds Manager configuration. Most callers should start from
// DefaultConfig and override what they need; New(nil) is equivalent to
// New(DefaultConfig()).
type Config struct {
	// Storage persists roles and users. Nil selects the in-memory
	// reference store.
	Storage Store

	// EnforceHierarchicalRoles expands parent roles during decisions.
	// On by default.
	EnforceHierarchicalRoles bool

	// CachePermissions enables the decision cache. Off by default: the
	// cache memoizes only boolean outcomes and trades freshness for
	// storage round trips.
	CachePermissions bool

	// CacheSize caps the number of memoized decisions.
	CacheSize int

	// CacheTTL expires memoized decisions. Zero keeps entries until
	// they are invalidated or evicted.
	CacheTTL time.Duration

	// Logger receives evaluator and resolver diagnostics. Nil creates
	// a fresh logrus logger.
	Logger *logrus.Logger

	// Metrics receives decision and cache counters. Nil disables
	// collection.
	Metrics *Metrics
}

// DefaultConfig returns the default configuration: in-memory storage,
// hierarchy enforcement on, caching off.
func DefaultConfig() *Config {
	return &Config{
		EnforceHierarchicalRoles: true,
		CachePermissions:         false,
		CacheSize:                DefaultCacheSize,
	}
}

// Manager is the façade over storage, condition evaluation and the
// decision cache: role and user CRUD, role assignment, and the Can
// family of decision calls. All methods are safe for concurrent use.
type Manager struct {
	config  Config
	store   Store
	logger  *logrus.Logger
	metrics *Metrics
	eval    *evaluator
	cache   *decisionCache
	tracer  trace.Tracer

	initMu      sync.Mutex
	initialized bool
}

// New creates a Manager. A nil config selects DefaultConfig.
func New(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	m := &Manager{
		config:  cfg,
		store:   cfg.Storage,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		eval:    newEvaluator(cfg.Logger),
		tracer:  otel.Tracer("github.com/platinummonkey/ratchet/pkg/rbac"),
	}
	if cfg.CachePermissions {
		m.cache = newDecisionCache(cfg.CacheSize, cfg.CacheTTL)
	}
	return m
}

// Initialize prepares the storage backend. Calling it is optional: every
// public method initializes lazily on first use. A failed initialization
// is retried on the next call.
func (m *Manager) Initialize(ctx context.Context) error {
	return m.ensureInitialized(ctx)
}

func (m *Manager) ensureInitialized(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return nil
	}
	if err := m.store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	m.initialized = true
	return nil
}

// Close shuts down the storage backend. The manager reinitializes the
// backend on the next call after Close.
func (m *Manager) Close() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if !m.initialized {
		return nil
	}
	m.initialized = false
	return m.store.Close()
}

// RegisterFunction makes fn available to function conditions stored
// under name. Later registrations under the same name replace earlier
// ones.
func (m *Manager) RegisterFunction(name string, fn PredicateFunc) {
	m.eval.registerFunction(name, fn)
}

// AddRole validates and stores a role, upserting by ID
func (m *Manager) AddRole(ctx context.Context, role *Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	stored := *role
	if stored.Permissions == nil {
		stored.Permissions = []Permission{}
	}
	if err := m.store.StoreRole(ctx, &stored); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// RemoveRole deletes a role. Removing an unknown role is a no-op. Users
// still listing the role keep the dangling reference; the resolver skips
// it during decisions.
func (m *Manager) RemoveRole(ctx context.Context, roleID string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := m.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// GetRole returns the role, or (nil, nil) when no role has that ID
func (m *Manager) GetRole(ctx context.Context, roleID string) (*Role, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return m.store.GetRole(ctx, roleID)
}

// ListRoles returns all stored roles
func (m *Manager) ListRoles(ctx context.Context) ([]*Role, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return m.store.ListRoles(ctx)
}

// RoleCount returns the number of stored roles
func (m *Manager) RoleCount(ctx context.Context) (int, error) {
	roles, err := m.ListRoles(ctx)
	if err != nil {
		return 0, err
	}
	return len(roles), nil
}

// AddUser validates and stores a user, upserting by ID
func (m *Manager) AddUser(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	stored := *user
	if stored.Roles == nil {
		stored.Roles = []string{}
	}
	if err := m.store.StoreUser(ctx, &stored); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// UpdateUser applies a partial patch to an existing user. Nil Roles or
// Permissions in the patch keep the stored values; Attributes merge key
// by key over the stored bag.
func (m *Manager) UpdateUser(ctx context.Context, userID string, patch UserPatch) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}

	if patch.Roles != nil {
		user.Roles = patch.Roles
	}
	if patch.Permissions != nil {
		user.Permissions = patch.Permissions
	}
	if len(patch.Attributes) > 0 {
		if user.Attributes == nil {
			user.Attributes = make(map[string]interface{}, len(patch.Attributes))
		}
		for k, v := range patch.Attributes {
			user.Attributes[k] = v
		}
	}

	if err := user.Validate(); err != nil {
		return err
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	if err := m.store.StoreUser(ctx, user); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// RemoveUser deletes a user. Removing an unknown user is a no-op.
func (m *Manager) RemoveUser(ctx context.Context, userID string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// GetUser returns the user, or (nil, nil) when no user has that ID
func (m *Manager) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return m.store.GetUser(ctx, userID)
}

// ListUsers returns all stored users
func (m *Manager) ListUsers(ctx context.Context) ([]*User, error) {
	if err := m.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return m.store.ListUsers(ctx)
}

// UserCount returns the number of stored users
func (m *Manager) UserCount(ctx context.Context) (int, error) {
	users, err := m.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// AssignRole adds a role to the user's role list. Both the user and the
// role must exist. Assigning an already held role is a no-op.
func (m *Manager) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, roleID)
	}

	for _, held := range user.Roles {
		if held == roleID {
			return nil
		}
	}
	user.Roles = append(user.Roles, roleID)
	if err := m.store.StoreUser(ctx, user); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// RevokeRole removes a role from the user's role list. The user must
// exist; revoking a role the user does not hold, including roles that no
// longer exist, is a no-op so stale assignments stay cleanable.
func (m *Manager) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := m.ensureInitialized(ctx); err != nil {
		return err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}

	kept := make([]string, 0, len(user.Roles))
	found := false
	for _, held := range user.Roles {
		if held == roleID {
			found = true
			continue
		}
		kept = append(kept, held)
	}
	if !found {
		return nil
	}
	user.Roles = kept
	if err := m.store.StoreUser(ctx, user); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// ClearCache discards all memoized decisions and their entries.
// Manager-mediated mutations invalidate automatically; ClearCache is
// required after writes that bypass the manager, such as direct Store
// access or another process sharing the backend.
func (m *Manager) ClearCache() {
	if m.cache == nil {
		return
	}
	m.cache.purge()
	m.metrics.recordCacheInvalidation()
}

// CacheStats reports decision cache counters. All zeros when caching is
// disabled.
func (m *Manager) CacheStats() CacheStats {
	if m.cache == nil {
		return CacheStats{}
	}
	return m.cache.stats()
}

func (m *Manager) invalidateCache() {
	if m.cache == nil {
		return
	}
	m.cache.invalidate()
	m.metrics.recordCacheInvalidation()
}
