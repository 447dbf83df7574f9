package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mealsync/mealsync/internal/domain"
)

type contextKey string

// MemberIDContextKey carries the authenticated member id.
const MemberIDContextKey contextKey = "member_id"

// Auth validates the Bearer token and stores the member id in the
// request context. Tokens are HMAC-signed JWTs whose subject is the
// member id issued at sign-in.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}
			memberID, err := token.Claims.GetSubject()
			if err != nil || memberID == "" {
				unauthorized(w, "invalid token subject")
				return
			}

			ctx := context.WithValue(r.Context(), MemberIDContextKey, memberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MemberID extracts the authenticated member id from the context,
// empty when the request did not pass Auth.
func MemberID(ctx context.Context) string {
	id, _ := ctx.Value(MemberIDContextKey).(string)
	return id
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(&domain.APIError{
		Code:    http.StatusUnauthorized,
		Message: message,
	})
}
