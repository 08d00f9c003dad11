package auth

import (
	"context"
	"net/http"

	"ms-salesreport/internal/models"
	"ms-salesreport/internal/utils"
)

type contextKey string

const usernameKey contextKey = "username"

type Verifier interface {
	Verify(raw string) (string, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// seller's username in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err)
				return
			}
			username, err := v.Verify(raw)
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), models.ErrUnauthorized.Error()))
}

// Username returns the authenticated seller, or "" outside the middleware.
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(usernameKey).(string); ok {
		return u
	}
	return ""
}

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}
