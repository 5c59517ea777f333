package rbac

import "time"

// RoleResponse is the wire shape of a roles row.
type RoleResponse struct {
	ID          int64     `json:"id_rol"`
	Name        string    `json:"nombre_rol"`
	Description string    `json:"descripcion"`
	Active      bool      `json:"estado"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleRequest is the POST/PUT payload for roles. Name content rules are
// enforced by the service.
type RoleRequest struct {
	Name        string `json:"nombre_rol" validate:"required,max=64"`
	Description string `json:"descripcion" validate:"max=256"`
	Active      bool   `json:"estado"`
}

// PermissionResponse is the wire shape of a permisos row. Operations is the
// canonical letter encoding.
type PermissionResponse struct {
	ID         int64  `json:"id_permiso"`
	Name       string `json:"nombre_permiso"`
	Operations string `json:"operaciones"`
	URL        string `json:"url"`
	ModuleID   int64  `json:"id_modulo"`
	Active     bool   `json:"estado"`
}

// PermissionRequest is the POST/PUT payload for permisos. Operations accepts
// any legacy encoding; the service canonicalizes it.
type PermissionRequest struct {
	Name       string `json:"nombre_permiso" validate:"required,max=128"`
	Operations string `json:"operaciones"`
	URL        string `json:"url" validate:"max=256"`
	ModuleID   int64  `json:"id_modulo"`
	Active     bool   `json:"estado"`
}

// UserRoleRequest is the POST payload for usuarios_roles.
type UserRoleRequest struct {
	UserID int64 `json:"id_usuario" validate:"required,gt=0"`
	RoleID int64 `json:"id_rol" validate:"required,gt=0"`
}

// RolePermissionSetRequest is the PUT payload replacing a role's whole
// permission set.
type RolePermissionSetRequest struct {
	PermissionIDs []int64 `json:"permisos" validate:"required"`
}

// RolePermissionRequest is the POST payload for roles_permisos.
type RolePermissionRequest struct {
	RoleID       int64 `json:"id_rol" validate:"required,gt=0"`
	PermissionID int64 `json:"id_permiso" validate:"required,gt=0"`
}

func toRoleResponse(role Role) RoleResponse {
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Active:      role.Active,
		CreatedAt:   role.CreatedAt,
	}
}

func toRoleResponses(roles []Role) []RoleResponse {
	out := make([]RoleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	return out
}

func toPermissionResponse(perm Permission) PermissionResponse {
	return PermissionResponse{
		ID:         perm.ID,
		Name:       perm.Name,
		Operations: perm.Operations,
		URL:        perm.URL,
		ModuleID:   perm.ModuleID,
		Active:     perm.Active,
	}
}

func toPermissionResponses(list []Permission) []PermissionResponse {
	out := make([]PermissionResponse, len(list))
	for i, perm := range list {
		out[i] = toPermissionResponse(perm)
	}
	return out
}

func roleAuditDetail(role Role) map[string]any {
	return map[string]any{
		"id_rol":     role.ID,
		"nombre_rol": role.Name,
		"estado":     role.Active,
	}
}

func permissionAuditDetail(perm Permission) map[string]any {
	return map[string]any{
		"id_permiso":     perm.ID,
		"nombre_permiso": perm.Name,
		"operaciones":    perm.Operations,
		"estado":         perm.Active,
	}
}
