package middleware

import (
	"context"
	"net/http"
	"strings"

	"token-auth-server/internal/model"
)

type accessTokenParser interface {
	ParseAccessToken(tokenString string) (*model.AuthClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	parser accessTokenParser
}

func NewAuthMiddleware(parser accessTokenParser) *AuthMiddleware {
	return &AuthMiddleware{parser: parser}
}

// RequireAuth accepts "Authorization: Bearer <access token>" and stores the verified claims
// in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeUnauthorized(w, "missing or invalid authorization header")
			return
		}

		claims, err := m.parser.ParseAccessToken(strings.TrimSpace(header[7:]))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}
