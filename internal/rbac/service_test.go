package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-app/custodia/internal/shared"
)

type memoryRepository struct {
	nextRoleID int64
	nextPermID int64
	roles      map[int64]Role
	perms      map[int64]Permission
	userRoles  map[int64][]int64
	rolePerms  map[int64][]int64
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		nextRoleID: 1,
		nextPermID: 1,
		roles:      map[int64]Role{},
		perms:      map[int64]Permission{},
		userRoles:  map[int64][]int64{},
		rolePerms:  map[int64][]int64{},
	}
}

func (m *memoryRepository) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *memoryRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return Role{}, shared.ErrDuplicate
		}
	}
	role.ID = m.nextRoleID
	m.nextRoleID++
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepository) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	for _, existing := range m.perms {
		if existing.Name == perm.Name {
			return Permission{}, shared.ErrDuplicate
		}
	}
	perm.ID = m.nextPermID
	m.nextPermID++
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memoryRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	if _, ok := m.perms[perm.ID]; !ok {
		return Permission{}, shared.ErrNotFound
	}
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memoryRepository) DeletePermission(ctx context.Context, id int64) error {
	if _, ok := m.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.perms, id)
	return nil
}

func (m *memoryRepository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for _, roleID := range m.userRoles[userID] {
		out = append(out, m.roles[roleID])
	}
	return out, nil
}

func (m *memoryRepository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	for _, existing := range m.userRoles[userID] {
		if existing == roleID {
			return shared.ErrDuplicate
		}
	}
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
	return nil
}

func (m *memoryRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	assigned := m.userRoles[userID]
	for i, existing := range assigned {
		if existing == roleID {
			m.userRoles[userID] = append(assigned[:i], assigned[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryRepository) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for _, permID := range m.rolePerms[roleID] {
		out = append(out, m.perms[permID])
	}
	return out, nil
}

func (m *memoryRepository) AttachPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	for _, existing := range m.rolePerms[roleID] {
		if existing == permissionID {
			return shared.ErrDuplicate
		}
	}
	m.rolePerms[roleID] = append(m.rolePerms[roleID], permissionID)
	return nil
}

func (m *memoryRepository) DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	attached := m.rolePerms[roleID]
	for i, existing := range attached {
		if existing == permissionID {
			m.rolePerms[roleID] = append(attached[:i], attached[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, ok := m.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	m.rolePerms[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

func (m *memoryRepository) UserGrants(ctx context.Context, userID int64) ([]Grant, error) {
	var grants []Grant
	for _, roleID := range m.userRoles[userID] {
		role := m.roles[roleID]
		for _, permID := range m.rolePerms[roleID] {
			perm := m.perms[permID]
			grants = append(grants, Grant{
				Resource:         perm.Name,
				Operations:       perm.Operations,
				RoleActive:       role.Active,
				PermissionActive: perm.Active,
			})
		}
	}
	return grants, nil
}

func TestCreateRoleNormalizesName(t *testing.T) {
	service := NewService(newMemoryRepository())

	role, err := service.CreateRole(context.Background(), "  Administrador General  ", "", true)
	require.NoError(t, err)
	require.Equal(t, "Administrador General", role.Name)
}

func TestCreateRoleRejectsInvalidNames(t *testing.T) {
	service := NewService(newMemoryRepository())

	cases := []string{"", "   ", "Admin1", "Admin-General", "Rol;DROP TABLE"}
	for _, name := range cases {
		_, err := service.CreateRole(context.Background(), name, "", true)
		require.ErrorIs(t, err, shared.ErrValidation, "name %q", name)
	}

	// Accented letters are letters.
	role, err := service.CreateRole(context.Background(), "Administración", "", true)
	require.NoError(t, err)
	require.Equal(t, "Administración", role.Name)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	service := NewService(newMemoryRepository())

	_, err := service.CreateRole(context.Background(), "Auditor", "", true)
	require.NoError(t, err)

	_, err = service.CreateRole(context.Background(), "Auditor", "otra descripcion", true)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreatePermissionCanonicalizesOperations(t *testing.T) {
	service := NewService(newMemoryRepository())

	cases := []struct {
		in   string
		want string
	}{
		{"DRC", "CRD"},
		{"C,R,U,D", "CRUD"},
		{`["C","R"]`, "CR"},
		{"crear,leer", "CR"},
		{"", ""},
		{"xyz", ""},
	}
	for i, tc := range cases {
		perm, err := service.CreatePermission(context.Background(), Permission{
			Name:       "recurso" + string(rune('a'+i)),
			Operations: tc.in,
			Active:     true,
		})
		require.NoError(t, err)
		require.Equal(t, tc.want, perm.Operations, "input %q", tc.in)
	}
}

func TestCreatePermissionRequiresName(t *testing.T) {
	service := NewService(newMemoryRepository())

	_, err := service.CreatePermission(context.Background(), Permission{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignmentRoundTrip(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "Auditor", "", true)
	require.NoError(t, err)
	perm, err := service.CreatePermission(ctx, Permission{Name: "auditoria", Operations: "R", Active: true})
	require.NoError(t, err)

	require.NoError(t, service.AssignRole(ctx, 10, role.ID))
	require.ErrorIs(t, service.AssignRole(ctx, 10, role.ID), shared.ErrDuplicate)

	require.NoError(t, service.AttachPermission(ctx, role.ID, perm.ID))
	require.ErrorIs(t, service.AttachPermission(ctx, role.ID, perm.ID), shared.ErrDuplicate)

	perms, err := service.PermissionsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)

	require.NoError(t, service.RemoveRole(ctx, 10, role.ID))
	require.ErrorIs(t, service.RemoveRole(ctx, 10, role.ID), shared.ErrNotFound)

	require.NoError(t, service.DetachPermission(ctx, role.ID, perm.ID))
	require.ErrorIs(t, service.DetachPermission(ctx, role.ID, perm.ID), shared.ErrNotFound)
}

func TestReplacePermissions(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "Auditor", "", true)
	require.NoError(t, err)

	require.NoError(t, service.ReplacePermissions(ctx, role.ID, []int64{3, 1, 3, 2}))
	require.Equal(t, []int64{3, 1, 2}, repo.rolePerms[role.ID], "duplicates collapse, order kept")

	require.NoError(t, service.ReplacePermissions(ctx, role.ID, nil))
	require.Empty(t, repo.rolePerms[role.ID])

	err = service.ReplacePermissions(ctx, role.ID, []int64{0})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = service.ReplacePermissions(ctx, 99, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
