// Package redisstore persists roles and users in Redis as JSON values
// under prefixed keys. It suits deployments that already run Redis and
// want shared policy state without a relational database. Listing uses
// SCAN, so very large policy sets pay a full key walk; inline Func
// predicates do not survive serialization, so function conditions
// persist by registered name only.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// scanBatch is the COUNT hint handed to SCAN while listing keys.
const scanBatch = 100

// Config controls the Redis connection and key layout
type Config struct {
	// URL is a redis:// connection URL
	URL string

	// KeyPrefix namespaces every key this store writes
	KeyPrefix string

	// Connection timeouts. Zero values keep the defaults.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default Redis store configuration
func DefaultConfig() *Config {
	return &Config{
		KeyPrefix:    "ratchet:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements rbac.Store on a Redis client
type Store struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// New creates a store from the given configuration. The connection is
// not verified here; Initialize pings the server.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ratchet:"
	}

	return &Store{
		client: redis.NewClient(opts),
		prefix: prefix,
		logger: logrus.New(),
	}, nil
}

// SetLogger replaces the store's logger
func (s *Store) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Initialize verifies connectivity with a bounded ping
func (s *Store) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.logger.Debugf("redis store ready (prefix %q)", s.prefix)
	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) roleKey(id string) string {
	return s.prefix + "role:" + id
}

func (s *Store) userKey(id string) string {
	return s.prefix + "user:" + id
}

// StoreRole upserts a role by ID
func (s *Store) StoreRole(ctx context.Context, role *rbac.Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role: %w", err)
	}

	if err := s.client.Set(ctx, s.roleKey(role.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// GetRole fetches a role by ID, returning (nil, nil) when absent
func (s *Store) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	data, err := s.client.Get(ctx, s.roleKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var role rbac.Role
	if err := json.Unmarshal([]byte(data), &role); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role: %w", err)
	}
	return &role, nil
}

// DeleteRole removes a role. Deleting an absent role is a no-op.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.roleKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// ListRoles returns all stored roles ordered by ID
func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	roles := []*rbac.Role{}

	iter := s.client.Scan(ctx, 0, s.prefix+"role:*", scanBatch).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			// Deleted between SCAN and GET.
			continue
		} else if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}

		var role rbac.Role
		if err := json.Unmarshal([]byte(data), &role); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role: %w", err)
		}
		roles = append(roles, &role)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// StoreUser upserts a user by ID
func (s *Store) StoreUser(ctx context.Context, user *rbac.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := s.client.Set(ctx, s.userKey(user.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID, returning (nil, nil) when absent
func (s *Store) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	data, err := s.client.Get(ctx, s.userKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var user rbac.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// DeleteUser removes a user. Deleting an absent user is a no-op.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.userKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// ListUsers returns all stored users ordered by ID
func (s *Store) ListUsers(ctx context.Context) ([]*rbac.User, error) {
	users := []*rbac.User{}

	iter := s.client.Scan(ctx, 0, s.prefix+"user:*", scanBatch).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}

		var user rbac.User
		if err := json.Unmarshal([]byte(data), &user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		users = append(users, &user)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}
