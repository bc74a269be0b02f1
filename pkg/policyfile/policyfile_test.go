package policyfile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

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

func newTestManager(t *testing.T) *rbac.Manager {
	t.Helper()

	cfg := rbac.DefaultConfig()
	cfg.Logger = quietLogger()
	return rbac.New(cfg)
}

const testPolicy = `
version: 1
roles:
  - id: viewer
    name: Viewer
    description: Read access to articles
    permissions:
      - action: read
        resource_type: article
  - id: editor
    name: Editor
    parent_roles: [viewer]
    permissions:
      - action: update
        resource_type: article
        condition:
          type: resource
          field: status
          operator: eq
          value: draft
        attributes: [title, body]
users:
  - id: alice
    roles: [editor]
    attributes:
      department: engineering
  - id: bob
    roles: [viewer]
`

func TestParse(t *testing.T) {
	file, err := Parse([]byte(testPolicy))
	require.NoError(t, err)

	assert.Equal(t, 1, file.Version)
	require.Len(t, file.Roles, 2)
	require.Len(t, file.Users, 2)

	editor := file.Roles[1]
	assert.Equal(t, "editor", editor.ID)
	assert.Equal(t, []string{"viewer"}, editor.ParentRoles)
	require.Len(t, editor.Permissions, 1)

	perm := editor.Permissions[0]
	assert.Equal(t, "update", perm.Action)
	assert.Equal(t, "article", perm.ResourceType)
	assert.Equal(t, []string{"title", "body"}, perm.Attributes)
	require.NotNil(t, perm.Condition)
	assert.Equal(t, "resource", perm.Condition.Type)
	assert.Equal(t, "status", perm.Condition.Field)
	assert.Equal(t, "eq", perm.Condition.Operator)
	assert.Equal(t, "draft", perm.Condition.Value)

	alice := file.Users[0]
	assert.Equal(t, "alice", alice.ID)
	assert.Equal(t, []string{"editor"}, alice.Roles)
	assert.Equal(t, "engineering", alice.Attributes["department"])
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("{{not yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy file")
}

func TestParse_Version(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unsupported version", doc: "version: 2\nroles: []\n"},
		{name: "missing version", doc: "roles: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unsupported policy file version")
		})
	}
}

func TestParse_InvalidRole(t *testing.T) {
	doc := `
version: 1
roles:
  - id: broken
    permissions:
      - action: read
        resource_type: article
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	assert.Contains(t, err.Error(), "roles[0]")
}

func TestParse_DuplicateRole(t *testing.T) {
	doc := `
version: 1
roles:
  - id: viewer
    name: Viewer
    permissions:
      - action: read
        resource_type: article
  - id: viewer
    name: Viewer Again
    permissions:
      - action: read
        resource_type: article
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate role "viewer"`)
}

func TestParse_UnknownOperator(t *testing.T) {
	doc := `
version: 1
roles:
  - id: editor
    name: Editor
    permissions:
      - action: update
        resource_type: article
        condition:
          type: resource
          field: status
          operator: equals
          value: draft
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, rbac.ErrInvalidPermission)
	assert.Contains(t, err.Error(), `unknown operator "equals"`)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o644))

	file, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, file.Roles, 2)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read policy file")
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	file, err := Parse([]byte(testPolicy))
	require.NoError(t, err)
	require.NoError(t, file.Apply(ctx, manager))

	roles, err := manager.RoleCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, roles)
	users, err := manager.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	// alice reads through the viewer parent and updates drafts only.
	decision, err := manager.Can(ctx, "alice", "read", rbac.Resource{Type: "article"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	draft := rbac.Resource{Type: "article", Attributes: map[string]interface{}{"status": "draft"}}
	decision, err = manager.Can(ctx, "alice", "update", draft)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	published := rbac.Resource{Type: "article", Attributes: map[string]interface{}{"status": "published"}}
	decision, err = manager.Can(ctx, "alice", "update", published)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	file, err := Parse([]byte(testPolicy))
	require.NoError(t, err)
	require.NoError(t, file.Apply(ctx, manager))
	require.NoError(t, file.Apply(ctx, manager))

	roles, err := manager.RoleCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, roles)
	users, err := manager.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, users)
}

func TestApply_ReplacesExistingRole(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	file, err := Parse([]byte(testPolicy))
	require.NoError(t, err)
	require.NoError(t, file.Apply(ctx, manager))

	trimmed := `
version: 1
roles:
  - id: editor
    name: Editor
    permissions:
      - action: read
        resource_type: article
`
	next, err := Parse([]byte(trimmed))
	require.NoError(t, err)
	require.NoError(t, next.Apply(ctx, manager))

	// The editor role was upserted whole, so the update grant is gone.
	draft := rbac.Resource{Type: "article", Attributes: map[string]interface{}{"status": "draft"}}
	decision, err := manager.Can(ctx, "alice", "update", draft)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestApply_RoleFailureAborts(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	// Built by hand to sidestep Parse validation.
	file := &File{
		Version: 1,
		Roles:   []RoleSpec{{ID: "broken"}},
		Users:   []UserSpec{{ID: "alice"}},
	}
	err := file.Apply(ctx, manager)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply roles")
	assert.Contains(t, err.Error(), `role "broken"`)

	// The user phase never ran.
	users, err := manager.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, users)
}

func TestApply_NumericValues(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	doc := `
version: 1
roles:
  - id: approver
    name: Approver
    permissions:
      - action: approve
        resource_type: article
        condition:
          type: user
          field: level
          operator: gte
          value: 5
users:
  - id: alice
    roles: [approver]
    attributes:
      level: 7
  - id: bob
    roles: [approver]
    attributes:
      level: 3
`
	file, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, file.Apply(ctx, manager))

	decision, err := manager.Can(ctx, "alice", "approve", rbac.Resource{Type: "article"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = manager.Can(ctx, "bob", "approve", rbac.Resource{Type: "article"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestApply_DirectUserPermission(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	doc := `
version: 1
users:
  - id: carol
    permissions:
      - action: publish
        resource_type: article
`
	file, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, file.Apply(ctx, manager))

	decision, err := manager.Can(ctx, "carol", "publish", rbac.Resource{Type: "article"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
