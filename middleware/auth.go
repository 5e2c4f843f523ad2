package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"go.uber.org/zap"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenVerifier resolves a session token to the user id it was issued for.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ClerkVerifier checks Clerk session JWTs. clerk.SetKey must have been called.
func ClerkVerifier(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

type Auth struct {
	verify TokenVerifier
	log    *zap.Logger
}

func NewAuth(verify TokenVerifier, log *zap.Logger) *Auth {
	return &Auth{verify: verify, log: log}
}

// Require validates the bearer token and puts the user id on the context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
			return
		}

		a.serveVerified(w, r, next, token)
	})
}

// RequireWebsocket also accepts ?token=, since browsers cannot set headers
// on a websocket handshake.
func (a *Auth) RequireWebsocket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, "token required")
			return
		}
		a.serveVerified(w, r, next, token)
	})
}

// Optional allows requests with or without auth.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if userID, err := a.verify(r.Context(), token); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) serveVerified(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	userID, err := a.verify(r.Context(), token)
	if err != nil || userID == "" {
		a.log.Debug("token verification failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID extracts the authenticated user id from context.
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"error": "` + message + `"}`))
}
