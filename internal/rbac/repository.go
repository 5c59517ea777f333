package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-app/custodia/internal/platform/db"
	"github.com/custodia-app/custodia/internal/shared"
)

// RepositoryPort defines data access for roles, permissions and their
// associations.
type RepositoryPort interface {
	GrantSource

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error

	PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermissionToRole(ctx context.Context, roleID, permissionID int64) error
	DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id_rol, nombre_rol, descripcion, estado, created_at`

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY nombre_rol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id_rol = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role. Duplicate names surface as shared.ErrDuplicate.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx,
		`INSERT INTO roles (nombre_rol, descripcion, estado) VALUES ($1, $2, $3) RETURNING `+roleColumns,
		role.Name, role.Description, role.Active))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return created, nil
}

// UpdateRole updates an existing role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	updated, err := scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles SET nombre_rol = $1, descripcion = $2, estado = $3 WHERE id_rol = $4 RETURNING `+roleColumns,
		role.Name, role.Description, role.Active, role.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a role by id.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id_rol = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const permissionColumns = `id_permiso, nombre_permiso, operaciones, url, id_modulo, estado`

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permisos ORDER BY nombre_permiso`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var permissions []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, perm)
	}
	return permissions, rows.Err()
}

// GetPermission fetches a permission by id.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	perm, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permisos WHERE id_permiso = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	created, err := scanPermission(r.pool.QueryRow(ctx,
		`INSERT INTO permisos (nombre_permiso, operaciones, url, id_modulo, estado)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+permissionColumns,
		perm.Name, perm.Operations, perm.URL, perm.ModuleID, perm.Active))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, err
	}
	return created, nil
}

// UpdatePermission updates an existing permission.
func (r *Repository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	updated, err := scanPermission(r.pool.QueryRow(ctx,
		`UPDATE permisos SET nombre_permiso = $1, operaciones = $2, url = $3, id_modulo = $4, estado = $5
		 WHERE id_permiso = $6 RETURNING `+permissionColumns,
		perm.Name, perm.Operations, perm.URL, perm.ModuleID, perm.Active, perm.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, err
	}
	return updated, nil
}

// DeletePermission removes a permission by id.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permisos WHERE id_permiso = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RolesForUser returns the roles assigned to a user.
func (r *Repository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id_rol, r.nombre_rol, r.descripcion, r.estado, r.created_at
		 FROM usuarios_roles ur
		 JOIN roles r ON ur.id_rol = r.id_rol
		 WHERE ur.id_usuario = $1
		 ORDER BY r.nombre_rol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRoleToUser inserts a usuarios_roles pair. Assigning twice is a
// shared.ErrDuplicate, enforced by the unique index.
func (r *Repository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usuarios_roles (id_usuario, id_rol) VALUES ($1, $2)`, userID, roleID)
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// RemoveRoleFromUser deletes a usuarios_roles pair.
func (r *Repository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM usuarios_roles WHERE id_usuario = $1 AND id_rol = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PermissionsForRole returns the permissions attached to a role.
func (r *Repository) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id_permiso, p.nombre_permiso, p.operaciones, p.url, p.id_modulo, p.estado
		 FROM roles_permisos rp
		 JOIN permisos p ON rp.id_permiso = p.id_permiso
		 WHERE rp.id_rol = $1
		 ORDER BY p.nombre_permiso`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var permissions []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, perm)
	}
	return permissions, rows.Err()
}

// AttachPermissionToRole inserts a roles_permisos pair.
func (r *Repository) AttachPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO roles_permisos (id_rol, id_permiso) VALUES ($1, $2)`, roleID, permissionID)
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// SetRolePermissions replaces the full permission set of a role in one
// transaction, so concurrent resolver reads never see a half-applied set.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id_rol = $1)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles_permisos WHERE id_rol = $1`, roleID); err != nil {
			return err
		}
		for _, permissionID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO roles_permisos (id_rol, id_permiso) VALUES ($1, $2)`, roleID, permissionID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DetachPermissionFromRole deletes a roles_permisos pair.
func (r *Repository) DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM roles_permisos WHERE id_rol = $1 AND id_permiso = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UserGrants loads the full join used by the resolver. The estado flags ride
// along so the resolver decides whether inactive grants count.
func (r *Repository) UserGrants(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.nombre_permiso, p.operaciones, r.estado, p.estado
		 FROM usuarios_roles ur
		 JOIN roles r ON ur.id_rol = r.id_rol
		 JOIN roles_permisos rp ON rp.id_rol = r.id_rol
		 JOIN permisos p ON p.id_permiso = rp.id_permiso
		 WHERE ur.id_usuario = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Resource, &g.Operations, &g.RoleActive, &g.PermissionActive); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Active, &createdAt); err != nil {
		return Role{}, err
	}
	if createdAt.Valid {
		role.CreatedAt = createdAt.Time
	}
	return role, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	var url pgtype.Text
	var moduleID pgtype.Int8
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Operations, &url, &moduleID, &perm.Active); err != nil {
		return Permission{}, err
	}
	if url.Valid {
		perm.URL = url.String
	}
	if moduleID.Valid {
		perm.ModuleID = moduleID.Int64
	}
	return perm, nil
}
