package redisstore

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.URL = "redis://" + mr.Addr()

	store, err := New(cfg)
	require.NoError(t, err)
	store.SetLogger(quietLogger())
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "invalid://url"

	_, err := New(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestInitialize_ConnectionFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://127.0.0.1:1"

	store, err := New(cfg)
	require.NoError(t, err, "New does not dial")

	err = store.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestStore_RoleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	role := &rbac.Role{
		ID:          "editor",
		Name:        "Editor",
		Description: "Can update unpublished articles",
		Permissions: []rbac.Permission{
			{Action: "read", ResourceType: "article"},
			{
				Action:       "update",
				ResourceType: "article",
				Condition: &rbac.Condition{
					Type:     rbac.ConditionResource,
					Field:    "status",
					Operator: rbac.OperatorIn,
					Value:    []interface{}{"draft", "review"},
				},
				Attributes: []string{"title", "body"},
			},
		},
		ParentRoles: []string{"viewer"},
	}

	require.NoError(t, store.StoreRole(ctx, role))

	got, err := store.GetRole(ctx, "editor")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, role, got)
}

func TestStore_UserRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	user := &rbac.User{
		ID:    "alice",
		Roles: []string{"editor", "auditor"},
		Permissions: []rbac.Permission{
			{Action: "restart", ResourceType: "service"},
		},
		Attributes: map[string]interface{}{
			"department": "engineering",
			"level":      float64(5),
			"contractor": false,
			"tags":       []interface{}{"oncall"},
		},
	}

	require.NoError(t, store.StoreUser(ctx, user))

	got, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user, got)
}

func TestStore_MissingRecordsAreNilNil(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	role, err := store.GetRole(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, role)

	user, err := store.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.StoreRole(ctx, &rbac.Role{ID: "editor", Name: "Editor"}))
	require.NoError(t, store.StoreRole(ctx, &rbac.Role{ID: "editor", Name: "Senior Editor"}))

	got, err := store.GetRole(ctx, "editor")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Senior Editor", got.Name)

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.StoreUser(ctx, &rbac.User{ID: "alice"}))
	require.NoError(t, store.DeleteUser(ctx, "alice"))

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, user)

	// Absent deletes are no-ops.
	require.NoError(t, store.DeleteUser(ctx, "alice"))
	require.NoError(t, store.DeleteRole(ctx, "ghost"))
}

func TestStore_ListOrdersByID(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	for _, id := range []string{"viewer", "admin", "editor"} {
		require.NoError(t, store.StoreRole(ctx, &rbac.Role{ID: id, Name: id}))
	}
	require.NoError(t, store.StoreUser(ctx, &rbac.User{ID: "bob"}))
	require.NoError(t, store.StoreUser(ctx, &rbac.User{ID: "alice"}))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	assert.Equal(t, []string{"admin", "editor", "viewer"}, ids)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "bob", users[1].ID)
}

func TestStore_ListsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.StoreRole(ctx, &rbac.Role{ID: "editor", Name: "Editor"}))
	require.NoError(t, store.StoreUser(ctx, &rbac.User{ID: "editor"}))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestStore_KeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.URL = "redis://" + mr.Addr()
	cfg.KeyPrefix = "custom:"

	store, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.StoreRole(context.Background(), &rbac.Role{ID: "editor", Name: "Editor"}))

	assert.True(t, mr.Exists("custom:role:editor"))
	assert.False(t, mr.Exists("ratchet:role:editor"))
}

func TestStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	store, mr := openTestStore(t)

	require.NoError(t, mr.Set("ratchet:role:bad", "{not json"))

	_, err := store.GetRole(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal role")

	_, err = store.ListRoles(ctx)
	require.Error(t, err)
}

func TestStore_BacksManager(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	cfg := rbac.DefaultConfig()
	cfg.Storage = store
	cfg.Logger = quietLogger()
	mgr := rbac.New(cfg)

	require.NoError(t, mgr.AddRole(ctx, &rbac.Role{
		ID:   "viewer",
		Name: "Viewer",
		Permissions: []rbac.Permission{
			{Action: "read", ResourceType: "article"},
		},
	}))
	require.NoError(t, mgr.AddRole(ctx, &rbac.Role{
		ID:          "editor",
		Name:        "Editor",
		ParentRoles: []string{"viewer"},
		Permissions: []rbac.Permission{
			{Action: "update", ResourceType: "article"},
		},
	}))
	require.NoError(t, mgr.AddUser(ctx, &rbac.User{ID: "alice", Roles: []string{"editor"}}))

	decision, err := mgr.Can(ctx, "alice", "read", rbac.Resource{Type: "article", ID: "a-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "hierarchy resolves through the Redis store")

	decision, err = mgr.Can(ctx, "alice", "delete", rbac.Resource{Type: "article", ID: "a-1"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
