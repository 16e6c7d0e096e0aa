package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"paystream.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// protect enforces bearer-token authentication plus a role on the
// handler. With no signing secret configured the surface runs open,
// which keeps local batch tooling friction-free.
func (a *API) protect(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		r = r.WithContext(ctx)

		RequireRole(role)(next).ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose context user lacks the role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			if !auth.HasRole(r.Context(), role) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
