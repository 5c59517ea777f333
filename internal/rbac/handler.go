package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-app/custodia/internal/gateway"
	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/platform/httpx"
	"github.com/custodia-app/custodia/internal/shared"
)

// Grant resources checked by the role and permission endpoints. Association
// changes are gated as updates on the owning side.
const (
	RoleResource       = "roles"
	PermissionResource = "permisos"
	UserResource       = "usuarios"
)

// Handler manages the roles, permisos and association endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gateway  *gateway.Gateway
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gw *gateway.Gateway, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		gateway:  gw,
		resolver: resolver,
		validate: validator.New(),
	}
}

// MountRoleRoutes registers the roles routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/{id}", h.getRole)
	r.Post("/", h.createRole)
	r.Put("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
	r.Get("/{id}/permisos", h.rolePermissions)
	r.Put("/{id}/permisos", h.replacePermissions)
}

// MountPermissionRoutes registers the permisos routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
	r.Get("/{id}", h.getPermission)
	r.Post("/", h.createPermission)
	r.Put("/{id}", h.updatePermission)
	r.Delete("/{id}", h.deletePermission)
}

// MountUserRoleRoutes registers the usuarios_roles routes.
func (h *Handler) MountUserRoleRoutes(r chi.Router) {
	r.Get("/{id}", h.userRoles)
	r.Post("/", h.assignRole)
	r.Delete("/{userID}/{roleID}", h.removeRole)
}

// MountRolePermissionRoutes registers the roles_permisos routes.
func (h *Handler) MountRolePermissionRoutes(r chi.Router) {
	r.Post("/", h.attachPermission)
	r.Delete("/{roleID}/{permissionID}", h.detachPermission)
}

// MountEffectiveRoutes registers the resolved-grants lookup used by clients
// to build their menus.
func (h *Handler) MountEffectiveRoutes(r chi.Router) {
	r.Get("/", h.effectivePermissions)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		roles, err := h.service.ListRoles(ctx)
		if err != nil {
			return nil, nil, err
		}
		return toRoleResponses(roles), map[string]any{"consulta": "SELECT * FROM roles"}, nil
	})
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		role, err := h.service.GetRole(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return toRoleResponse(role), map[string]any{"id_rol": id}, nil
	})
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	var req RoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpCreate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		role, err := h.service.CreateRole(ctx, req.Name, req.Description, req.Active)
		if err != nil {
			return nil, nil, err
		}
		return toRoleResponse(role), roleAuditDetail(role), nil
	})
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		role, err := h.service.UpdateRole(ctx, id, req.Name, req.Description, req.Active)
		if err != nil {
			return nil, nil, err
		}
		return toRoleResponse(role), roleAuditDetail(role), nil
	})
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpDelete,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.DeleteRole(ctx, id); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_rol": id}, nil
	})
	if err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Rol eliminado correctamente"})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
		Table:    "roles_permisos",
	}, func(ctx context.Context) (any, map[string]any, error) {
		list, err := h.service.PermissionsForRole(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return toPermissionResponses(list), map[string]any{"id_rol": id}, nil
	})
	if err != nil {
		h.respondError(w, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RolePermissionSetRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
		Table:    "roles_permisos",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.ReplacePermissions(ctx, id, req.PermissionIDs); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_rol": id, "permisos": req.PermissionIDs}, nil
	})
	if err != nil {
		h.respondError(w, "replace role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Permisos actualizados correctamente"})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: PermissionResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		list, err := h.service.ListPermissions(ctx)
		if err != nil {
			return nil, nil, err
		}
		return toPermissionResponses(list), map[string]any{"consulta": "SELECT * FROM permisos"}, nil
	})
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: PermissionResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		perm, err := h.service.GetPermission(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return toPermissionResponse(perm), map[string]any{"id_permiso": id}, nil
	})
	if err != nil {
		h.respondError(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	var req PermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: PermissionResource,
		Op:       perms.OpCreate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		perm, err := h.service.CreatePermission(ctx, Permission{
			Name:       req.Name,
			Operations: req.Operations,
			URL:        req.URL,
			ModuleID:   req.ModuleID,
			Active:     req.Active,
		})
		if err != nil {
			return nil, nil, err
		}
		return toPermissionResponse(perm), permissionAuditDetail(perm), nil
	})
	if err != nil {
		h.respondError(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: PermissionResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
	}, func(ctx context.Context) (any, map[string]any, error) {
		perm, err := h.service.UpdatePermission(ctx, Permission{
			ID:         id,
			Name:       req.Name,
			Operations: req.Operations,
			URL:        req.URL,
			ModuleID:   req.ModuleID,
			Active:     req.Active,
		})
		if err != nil {
			return nil, nil, err
		}
		return toPermissionResponse(perm), permissionAuditDetail(perm), nil
	})
	if err != nil {
		h.respondError(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: PermissionResource,
		Op:       perms.OpDelete,
		Mode:     gateway.BestEffort,
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.DeletePermission(ctx, id); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_permiso": id}, nil
	})
	if err != nil {
		h.respondError(w, "delete permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Permiso eliminado correctamente"})
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	userID, err := pathInt(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: UserResource,
		Op:       perms.OpRead,
		Mode:     gateway.BestEffort,
		Table:    "usuarios_roles",
	}, func(ctx context.Context) (any, map[string]any, error) {
		roles, err := h.service.RolesForUser(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		return toRoleResponses(roles), map[string]any{"id_usuario": userID}, nil
	})
	if err != nil {
		h.respondError(w, "list user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// assignRole changes a user's role set, so it is gated as an update on the
// usuarios resource.
func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	var req UserRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: UserResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
		Table:    "usuarios_roles",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.AssignRole(ctx, req.UserID, req.RoleID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_usuario": req.UserID, "id_rol": req.RoleID}, nil
	})
	if err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"mensaje": "Rol asignado correctamente"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	userID, err := pathInt(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := pathInt(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: UserResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.BestEffort,
		Table:    "usuarios_roles",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.RemoveRole(ctx, userID, roleID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_usuario": userID, "id_rol": roleID}, nil
	})
	if err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Rol removido correctamente"})
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	var req RolePermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err := h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.Strict,
		Table:    "roles_permisos",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.AttachPermission(ctx, req.RoleID, req.PermissionID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_rol": req.RoleID, "id_permiso": req.PermissionID}, nil
	})
	if err != nil {
		h.respondError(w, "attach permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"mensaje": "Permiso asignado correctamente"})
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	roleID, err := pathInt(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permissionID, err := pathInt(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.gateway.Invoke(r.Context(), gateway.Request{
		Actor:    actor,
		Resource: RoleResource,
		Op:       perms.OpUpdate,
		Mode:     gateway.BestEffort,
		Table:    "roles_permisos",
	}, func(ctx context.Context) (any, map[string]any, error) {
		if err := h.service.DetachPermission(ctx, roleID, permissionID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"id_rol": roleID, "id_permiso": permissionID}, nil
	})
	if err != nil {
		h.respondError(w, "detach permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Permiso removido correctamente"})
}

// effectivePermissions returns the caller's resolved resource map. Any
// authenticated actor may read its own grants; no gateway check applies.
func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	resolved, err := h.resolver.EffectivePermissions(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, "resolve permissions", err)
		return
	}
	out := make(map[string]string, len(resolved))
	for resource, ops := range resolved {
		out[resource] = ops.Encode()
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: invalid json", shared.ErrValidation)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	h.logger.Error(action+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return v, nil
}
