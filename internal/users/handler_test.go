package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/auth"
	"github.com/custodia-app/custodia/internal/gateway"
	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/shared"
	_ "github.com/custodia-app/custodia/internal/testing/guard"
	slogpkg "log/slog"
)

type grantTable struct {
	grants map[int64]map[string]perms.OpSet
}

func (g *grantTable) IsAuthorized(ctx context.Context, userID int64, resource string, op perms.Op) (bool, error) {
	ops, ok := g.grants[userID][resource]
	if !ok {
		return false, nil
	}
	return ops.Has(op), nil
}

type captureRecorder struct {
	entries []audit.Entry
	err     error
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entry)
	return nil
}

type handlerFixture struct {
	repo     *memoryRepository
	service  *Service
	recorder *captureRecorder
	router   http.Handler
}

func newHandlerFixture(t *testing.T, grants map[int64]map[string]perms.OpSet) *handlerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens := auth.NewTokenManager(client, time.Hour)

	repo := newMemoryRepository()
	service := NewService(repo)
	recorder := &captureRecorder{}
	logger := slogpkg.New(slogpkg.DiscardHandler)
	gw := gateway.New(&grantTable{grants: grants}, recorder, logger, nil)

	roleName := func(ctx context.Context, userID int64) string { return "Administrador" }
	handler := NewHandler(logger, service, gw, recorder, tokens, roleName)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-Actor"); id != "" {
				actor := shared.AuthenticatedActor(mustID(id), "Administrador")
				r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/api/usuarios", func(sub chi.Router) {
		handler.MountRoutes(sub, nil)
	})

	return &handlerFixture{repo: repo, service: service, recorder: recorder, router: router}
}

func mustID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		panic(err)
	}
	return id
}

func adminGrants() map[int64]map[string]perms.OpSet {
	return map[int64]map[string]perms.OpSet{
		1: {"usuarios": perms.All},
	}
}

func TestCreateUserEndpoint(t *testing.T) {
	fx := newHandlerFixture(t, adminGrants())

	body := `{"usuario":"jdoe","contrasena":"hunter22","nombre":"Jane Doe"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios/", strings.NewReader(body))
	req.Header.Set("X-Test-Actor", "1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "jdoe", resp["usuario"])
	require.NotContains(t, resp, "contrasena", "credential hash never leaves the service")

	require.Len(t, fx.recorder.entries, 1)
	entry := fx.recorder.entries[0]
	require.Equal(t, audit.ActionInsert, entry.Action)
	require.Equal(t, "usuarios", entry.Table)
	require.NotNil(t, entry.UserID)
	require.Equal(t, int64(1), *entry.UserID)
}

func TestCreateUserDenied(t *testing.T) {
	fx := newHandlerFixture(t, map[int64]map[string]perms.OpSet{
		2: {"usuarios": perms.NewOpSet(perms.OpRead)},
	})

	body := `{"usuario":"jdoe","contrasena":"hunter22"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios/", strings.NewReader(body))
	req.Header.Set("X-Test-Actor", "2")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, fx.repo.users, "denied create must not touch the store")
	require.Empty(t, fx.recorder.entries, "denied attempts are not audited")
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	fx := newHandlerFixture(t, adminGrants())

	req := httptest.NewRequest(http.MethodGet, "/api/usuarios/", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginIssuesTokenAndRecords(t *testing.T) {
	fx := newHandlerFixture(t, adminGrants())

	_, err := fx.service.CreateUser(context.Background(), "jdoe", "hunter22", "Jane", true)
	require.NoError(t, err)

	body := `{"usuario":"jdoe","contrasena":"hunter22"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "jdoe", resp.User.Username)

	require.Len(t, fx.recorder.entries, 1)
	require.Equal(t, audit.ActionLogin, fx.recorder.entries[0].Action)

	verify := httptest.NewRequest(http.MethodGet, "/api/usuarios/verificar-token", nil)
	verify.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	fx.router.ServeHTTP(rec, verify)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	fx := newHandlerFixture(t, adminGrants())

	_, err := fx.service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)

	body := `{"usuario":"jdoe","contrasena":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, fx.recorder.entries, "failed logins produce no entry")
}

func TestLoginFailsWhenAuditUnavailable(t *testing.T) {
	fx := newHandlerFixture(t, adminGrants())

	_, err := fx.service.CreateUser(context.Background(), "jdoe", "hunter22", "", true)
	require.NoError(t, err)
	fx.recorder.err = shared.ErrAuditWrite

	body := `{"usuario":"jdoe","contrasena":"hunter22"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
