package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/gateway"
	"github.com/custodia-app/custodia/internal/rbac"
	"github.com/custodia-app/custodia/internal/shared"
	"github.com/custodia-app/custodia/internal/users"
)

type memoryRBAC struct {
	nextID   int64
	roles    map[string]rbac.Role
	perms    map[string]rbac.Permission
	attached map[[2]int64]bool
	assigned map[[2]int64]bool
}

func newMemoryRBAC() *memoryRBAC {
	return &memoryRBAC{
		nextID:   1,
		roles:    map[string]rbac.Role{},
		perms:    map[string]rbac.Permission{},
		attached: map[[2]int64]bool{},
		assigned: map[[2]int64]bool{},
	}
}

func (m *memoryRBAC) CreateRole(ctx context.Context, name, description string, active bool) (rbac.Role, error) {
	if _, ok := m.roles[name]; ok {
		return rbac.Role{}, shared.ErrDuplicate
	}
	role := rbac.Role{ID: m.nextID, Name: name, Description: description, Active: active}
	m.nextID++
	m.roles[name] = role
	return role, nil
}

func (m *memoryRBAC) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRBAC) CreatePermission(ctx context.Context, perm rbac.Permission) (rbac.Permission, error) {
	if _, ok := m.perms[perm.Name]; ok {
		return rbac.Permission{}, shared.ErrDuplicate
	}
	perm.ID = m.nextID
	m.nextID++
	m.perms[perm.Name] = perm
	return perm, nil
}

func (m *memoryRBAC) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	key := [2]int64{roleID, permissionID}
	if m.attached[key] {
		return shared.ErrDuplicate
	}
	m.attached[key] = true
	return nil
}

func (m *memoryRBAC) AssignRole(ctx context.Context, userID, roleID int64) error {
	key := [2]int64{userID, roleID}
	if m.assigned[key] {
		return shared.ErrDuplicate
	}
	m.assigned[key] = true
	return nil
}

type memoryUsers struct {
	nextID int64
	byName map[string]users.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{nextID: 1, byName: map[string]users.User{}}
}

func (m *memoryUsers) CreateUser(ctx context.Context, username, password, displayName string, active bool) (users.User, error) {
	if _, ok := m.byName[username]; ok {
		return users.User{}, shared.ErrDuplicate
	}
	user := users.User{ID: m.nextID, Username: username, DisplayName: displayName, Active: active}
	m.nextID++
	m.byName[username] = user
	return user, nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func TestBootstrapAuditsEveryMutation(t *testing.T) {
	recorder := &captureRecorder{}
	gw := gateway.New(nil, recorder, slog.New(slog.DiscardHandler), nil)
	rbacStore := newMemoryRBAC()
	userStore := newMemoryUsers()

	role, err := bootstrap(context.Background(), gw, rbacStore, userStore, "hunter22")
	require.NoError(t, err)
	require.Equal(t, "SuperAdmin", role.Name)

	// One role, four permissions, four attachments, one user, one assignment.
	require.Len(t, recorder.entries, 11)

	byTable := map[string]int{}
	for _, entry := range recorder.entries {
		byTable[entry.Table]++
		require.Nil(t, entry.UserID)
		require.Equal(t, shared.SystemRoleName, entry.RoleName)
		require.Equal(t, "seed", entry.Detail["origen"])
	}
	require.Equal(t, map[string]int{
		"roles":          1,
		"permisos":       4,
		"roles_permisos": 4,
		"usuarios":       1,
		"usuarios_roles": 1,
	}, byTable)
}

func TestBootstrapRerunAddsNoEntries(t *testing.T) {
	recorder := &captureRecorder{}
	gw := gateway.New(nil, recorder, slog.New(slog.DiscardHandler), nil)
	rbacStore := newMemoryRBAC()
	userStore := newMemoryUsers()

	_, err := bootstrap(context.Background(), gw, rbacStore, userStore, "hunter22")
	require.NoError(t, err)
	first := len(recorder.entries)

	role, err := bootstrap(context.Background(), gw, rbacStore, userStore, "hunter22")
	require.NoError(t, err)
	require.Equal(t, "SuperAdmin", role.Name)
	require.Len(t, recorder.entries, first, "a rerun mutates nothing")
}
