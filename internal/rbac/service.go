package rbac

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/shared"
)

// Service orchestrates role and permission management.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role after normalizing and validating the name.
func (s *Service) CreateRole(ctx context.Context, name, description string, active bool) (Role, error) {
	name, err := normalizeRoleName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      active,
	})
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, active bool) (Role, error) {
	name, err := normalizeRoleName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.UpdateRole(ctx, Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      active,
	})
}

// DeleteRole removes a role by id.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by id.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission inserts a new permission. Whatever encoding the caller
// sent for the operation set is decoded and re-encoded so only the canonical
// form is persisted.
func (s *Service) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	name := norm.NFC.String(strings.TrimSpace(perm.Name))
	if name == "" {
		return Permission{}, fmt.Errorf("%w: nombre_permiso required", shared.ErrValidation)
	}
	perm.Name = name
	perm.Operations = perms.Decode(perm.Operations).Encode()
	perm.URL = strings.TrimSpace(perm.URL)
	return s.repo.CreatePermission(ctx, perm)
}

// UpdatePermission updates an existing permission.
func (s *Service) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	name := norm.NFC.String(strings.TrimSpace(perm.Name))
	if name == "" {
		return Permission{}, fmt.Errorf("%w: nombre_permiso required", shared.ErrValidation)
	}
	perm.Name = name
	perm.Operations = perms.Decode(perm.Operations).Encode()
	perm.URL = strings.TrimSpace(perm.URL)
	return s.repo.UpdatePermission(ctx, perm)
}

// DeletePermission removes a permission by id.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// RolesForUser returns the roles assigned to a user.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.RolesForUser(ctx, userID)
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.AssignRoleToUser(ctx, userID, roleID)
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.RemoveRoleFromUser(ctx, userID, roleID)
}

// PermissionsForRole returns the permissions attached to a role.
func (s *Service) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.PermissionsForRole(ctx, roleID)
}

// AttachPermission attaches a permission to a role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.AttachPermissionToRole(ctx, roleID, permissionID)
}

// ReplacePermissions swaps the whole permission set of a role atomically.
// Duplicate ids in the input collapse to one.
func (s *Service) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	seen := make(map[int64]struct{}, len(permissionIDs))
	unique := make([]int64, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if id <= 0 {
			return fmt.Errorf("%w: id_permiso must be positive", shared.ErrValidation)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return s.repo.SetRolePermissions(ctx, roleID, unique)
}

// DetachPermission detaches a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.DetachPermissionFromRole(ctx, roleID, permissionID)
}

// normalizeRoleName trims, NFC-normalizes and validates a role name. Names
// are letters and spaces only; the check lives here at the boundary, the
// store only enforces uniqueness.
func normalizeRoleName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: nombre_rol required", shared.ErrValidation)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' {
			return "", fmt.Errorf("%w: nombre_rol admits letters and spaces only", shared.ErrValidation)
		}
	}
	return name, nil
}
