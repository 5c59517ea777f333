// Command seed creates the schema and the bootstrap SuperAdmin account.
// It is idempotent: reruns leave existing rows untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/custodia-app/custodia/internal/app"
	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/gateway"
	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/platform/db"
	"github.com/custodia-app/custodia/internal/rbac"
	"github.com/custodia-app/custodia/internal/shared"
	"github.com/custodia-app/custodia/internal/users"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS usuarios (
		id_usuario BIGSERIAL PRIMARY KEY,
		usuario TEXT NOT NULL,
		contrasena TEXT NOT NULL,
		nombre TEXT NOT NULL DEFAULT '',
		estado BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS usuarios_usuario_key ON usuarios (usuario)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id_rol BIGSERIAL PRIMARY KEY,
		nombre_rol TEXT NOT NULL,
		descripcion TEXT NOT NULL DEFAULT '',
		estado BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS roles_nombre_rol_key ON roles (nombre_rol)`,
	`CREATE TABLE IF NOT EXISTS permisos (
		id_permiso BIGSERIAL PRIMARY KEY,
		nombre_permiso TEXT NOT NULL,
		operaciones TEXT NOT NULL DEFAULT '',
		url TEXT,
		id_modulo BIGINT,
		estado BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS permisos_nombre_permiso_key ON permisos (nombre_permiso)`,
	`CREATE TABLE IF NOT EXISTS usuarios_roles (
		id_usuario BIGINT NOT NULL REFERENCES usuarios (id_usuario) ON DELETE CASCADE,
		id_rol BIGINT NOT NULL REFERENCES roles (id_rol) ON DELETE CASCADE,
		PRIMARY KEY (id_usuario, id_rol)
	)`,
	`CREATE TABLE IF NOT EXISTS roles_permisos (
		id_rol BIGINT NOT NULL REFERENCES roles (id_rol) ON DELETE CASCADE,
		id_permiso BIGINT NOT NULL REFERENCES permisos (id_permiso) ON DELETE CASCADE,
		PRIMARY KEY (id_rol, id_permiso)
	)`,
	`CREATE TABLE IF NOT EXISTS auditoria (
		id BIGSERIAL PRIMARY KEY,
		accion TEXT NOT NULL,
		modulo TEXT NOT NULL,
		tabla TEXT NOT NULL,
		id_usuario BIGINT,
		nombre_rol TEXT NOT NULL DEFAULT 'Sistema',
		details JSONB,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS auditoria_timestamp_idx ON auditoria (timestamp DESC)`,
}

// Every administrable resource gets a full CRUD permission attached to the
// bootstrap role.
var seedResources = []string{"usuarios", "roles", "permisos", "auditoria"}

// rbacStore is the slice of the rbac service the bootstrap uses.
type rbacStore interface {
	CreateRole(ctx context.Context, name, description string, active bool) (rbac.Role, error)
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	CreatePermission(ctx context.Context, perm rbac.Permission) (rbac.Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
}

// userStore is the slice of the users service the bootstrap uses.
type userStore interface {
	CreateUser(ctx context.Context, username, password, displayName string, active bool) (users.User, error)
}

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Error("apply schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	recorder := audit.NewPGRecorder(pool)
	// The seed runs as the system pseudo-actor, which skips authorization,
	// so no resolver is wired.
	gw := gateway.New(nil, recorder, logger, nil)

	rbacService := rbac.NewService(rbac.NewRepository(pool))
	usersService := users.NewService(users.NewRepository(pool))

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}

	role, err := bootstrap(ctx, gw, rbacService, usersService, password)
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete", slog.String("role", role.Name))
}

// bootstrap provisions the SuperAdmin role, its full CRUD permissions and the
// admin account. Every mutation goes through the gateway as the system actor,
// so the bootstrap itself lands in auditoria. Rows from earlier runs are
// tolerated.
func bootstrap(ctx context.Context, gw *gateway.Gateway, rbacSvc rbacStore, userSvc userStore, password string) (rbac.Role, error) {
	system := shared.SystemActor()

	var role rbac.Role
	result, err := gw.Invoke(ctx, gateway.Request{
		Actor:    system,
		Resource: "roles",
		Op:       perms.OpCreate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		created, err := rbacSvc.CreateRole(ctx, "SuperAdmin", "Rol de administracion inicial", true)
		if err != nil {
			return nil, nil, err
		}
		return created, map[string]any{"nombre_rol": created.Name, "origen": "seed"}, nil
	})
	switch {
	case errors.Is(err, shared.ErrDuplicate):
		roles, lerr := rbacSvc.ListRoles(ctx)
		if lerr != nil {
			return rbac.Role{}, fmt.Errorf("seed: list roles: %w", lerr)
		}
		for _, r := range roles {
			if r.Name == "SuperAdmin" {
				role = r
			}
		}
		if role.ID == 0 {
			return rbac.Role{}, fmt.Errorf("seed: role SuperAdmin: %w", shared.ErrNotFound)
		}
	case err != nil:
		return rbac.Role{}, fmt.Errorf("seed: create role: %w", err)
	default:
		role = result.(rbac.Role)
	}

	for _, resource := range seedResources {
		result, err := gw.Invoke(ctx, gateway.Request{
			Actor:    system,
			Resource: "permisos",
			Op:       perms.OpCreate,
			Mode:     gateway.Strict,
		}, func(ctx context.Context) (any, map[string]any, error) {
			perm, err := rbacSvc.CreatePermission(ctx, rbac.Permission{
				Name:       resource,
				Operations: perms.All.Encode(),
				URL:        "/" + resource,
				Active:     true,
			})
			if err != nil {
				return nil, nil, err
			}
			return perm, map[string]any{"nombre_permiso": perm.Name, "operaciones": perm.Operations, "origen": "seed"}, nil
		})
		if errors.Is(err, shared.ErrDuplicate) {
			continue
		}
		if err != nil {
			return rbac.Role{}, fmt.Errorf("seed: create permission %s: %w", resource, err)
		}
		perm := result.(rbac.Permission)

		_, err = gw.Invoke(ctx, gateway.Request{
			Actor:    system,
			Resource: "roles",
			Op:       perms.OpUpdate,
			Mode:     gateway.Strict,
			Table:    "roles_permisos",
		}, func(ctx context.Context) (any, map[string]any, error) {
			if err := rbacSvc.AttachPermission(ctx, role.ID, perm.ID); err != nil {
				return nil, nil, err
			}
			return nil, map[string]any{"id_rol": role.ID, "id_permiso": perm.ID, "origen": "seed"}, nil
		})
		if err != nil && !errors.Is(err, shared.ErrDuplicate) {
			return rbac.Role{}, fmt.Errorf("seed: attach permission %s: %w", resource, err)
		}
	}

	result, err = gw.Invoke(ctx, gateway.Request{
		Actor:    system,
		Resource: "usuarios",
		Op:       perms.OpCreate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		admin, err := userSvc.CreateUser(ctx, "admin", password, "Administrador", true)
		if err != nil {
			return nil, nil, err
		}
		return admin, map[string]any{"usuario": admin.Username, "origen": "seed"}, nil
	})
	if errors.Is(err, shared.ErrDuplicate) {
		return role, nil
	}
	if err != nil {
		return rbac.Role{}, fmt.Errorf("seed: create admin: %w", err)
	}
	admin := result.(users.User)

	_, err = gw.Invoke(ctx, gateway.Request{
		Actor:    system,
		Resource: "usuarios",
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
		Table:    "usuarios_roles",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := rbacSvc.AssignRole(ctx, admin.ID, role.ID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_usuario": admin.ID, "id_rol": role.ID, "origen": "seed"}, nil
	})
	if err != nil && !errors.Is(err, shared.ErrDuplicate) {
		return rbac.Role{}, fmt.Errorf("seed: assign role: %w", err)
	}
	return role, nil
}
