package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/sakif/skillboard/internal/model"
)

// contextKey is package-private so no other package can read or overwrite
// the principal stored under it.
type contextKey struct{}

// CookieName is the HttpOnly cookie that carries the access token.
const CookieName = "token"

// errNoToken means the request carried neither the cookie nor a bearer header.
var errNoToken = errors.New("auth: no token")

// RequireAuth rejects requests without a valid token with 401 and otherwise
// stores the caller's Principal in the request context.
//
// An expired token gets its own message and the stale cookie is cleared, so
// the frontend can send the user to the login page instead of showing a
// generic error.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := extractPrincipal(r, tokens)
			switch {
			case errors.Is(err, ErrTokenExpired):
				ClearCookie(w)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "session expired, please log in again")
				return
			case err != nil:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the Principal when a valid token is present and lets
// every request through. The view counter uses it: anonymous views count,
// an owner viewing their own project does not.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := extractPrincipal(r, tokens); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole lets the request through only if the authenticated caller has
// one of roles. Mount it after RequireAuth:
//
//	r.With(auth.RequireAuth(tokens), auth.RequireRole(model.RoleAdmin)).Post(...)
//
// Anonymous callers get 401, authenticated callers with the wrong role 403.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeJSONError(w, http.StatusForbidden, "forbidden", "your role cannot do this")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// WithPrincipal returns a copy of ctx carrying p. Middleware uses it, and so
// do handler tests that want an authenticated request without minting a JWT.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// SetCookie stores token in the session cookie. secure should be true
// whenever the site is served over HTTPS.
func SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TokenLifetime.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie (logout, expired token).
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// extractPrincipal prefers the cookie and falls back to a bearer header.
func extractPrincipal(r *http.Request, tokens *TokenService) (Principal, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return tokens.Validate(c.Value)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return tokens.Validate(tok)
		}
	}
	return Principal{}, errNoToken
}

// writeJSONError mirrors handler.writeJSON's error shape. It lives here too
// because the handler package imports auth, not the other way round.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, code, message)
}
