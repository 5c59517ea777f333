package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/custodia-app/custodia/internal/shared"
)

// Middleware resolves bearer tokens into the request actor.
type Middleware struct {
	Tokens *TokenManager
	Logger *slog.Logger
}

// Authenticate attaches the acting identity to the request context when a
// valid bearer token is present. Requests without a token pass through
// unauthenticated; handlers deny them when they reach the gateway.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		payload, err := m.Tokens.Resolve(r.Context(), token)
		if err != nil {
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				if m.Logger != nil {
					m.Logger.Error("resolve token", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			// Stale token: treat as unauthenticated rather than erroring,
			// the original client keeps sending expired tokens on purpose.
			next.ServeHTTP(w, r)
			return
		}
		actor := shared.AuthenticatedActor(payload.UserID, payload.RoleName)
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
