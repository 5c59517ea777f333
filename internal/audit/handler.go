package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/platform/httpx"
	"github.com/custodia-app/custodia/internal/shared"
)

// ResourceName is the grant the auditoria endpoints are checked against.
const ResourceName = "auditoria"

// Authorizer answers capability checks for the audit endpoints.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID int64, resource string, op perms.Op) (bool, error)
}

// Handler serves the audit trail. The trail never audits itself: reads and
// deletes here are authorized directly, without producing entries.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	authorizer Authorizer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authorizer Authorizer) *Handler {
	return &Handler{logger: logger, service: service, authorizer: authorizer}
}

// MountRoutes registers auditoria routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, perms.OpRead) {
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list audit entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListResponse(result))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, perms.OpRead) {
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get audit entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, perms.OpDelete) {
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete audit entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Registro eliminado correctamente"})
}

// authorize writes the error response itself and reports whether the caller
// may proceed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, op perms.Op) bool {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return false
	}
	if actor.IsSystem() {
		return true
	}
	allowed, err := h.authorizer.IsAuthorized(r.Context(), actor.UserID, ResourceName, op)
	if err != nil {
		h.respondError(w, "authorize audit access", err)
		return false
	}
	if !allowed {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return false
	}
	return true
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	filters := Filters{
		Action: q.Get("accion"),
		Table:  q.Get("tabla"),
		Actor:  q.Get("nombre_rol"),
	}
	if v := q.Get("desde"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: desde must be RFC3339", shared.ErrValidation)
		}
		filters.From = t
	}
	if v := q.Get("hasta"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: hasta must be RFC3339", shared.ErrValidation)
		}
		filters.To = t
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return Filters{}, fmt.Errorf("%w: invalid page", shared.ErrValidation)
		}
		filters.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return Filters{}, fmt.Errorf("%w: invalid page_size", shared.ErrValidation)
		}
		filters.PageSize = size
	}
	return filters, nil
}

func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	h.logger.Error(action+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
