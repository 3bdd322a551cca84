package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vidaplena/clinic-portal/internal/session"
)

type credsKey struct{}

// RequireCredentials extracts the actor identity and session token the
// portal frontend forwards on every call and rejects requests missing
// either. Handlers read the result with CredentialsFromContext.
func RequireCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := session.Credentials{
			Actor: strings.TrimSpace(r.Header.Get("X-Actor-ID")),
			Token: bearerToken(r),
		}
		if err := creds.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), credsKey{}, creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CredentialsFromContext returns the credentials stored by
// RequireCredentials.
func CredentialsFromContext(ctx context.Context) (session.Credentials, bool) {
	creds, ok := ctx.Value(credsKey{}).(session.Credentials)
	return creds, ok
}

func bearerToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get("X-Session-Token")); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
