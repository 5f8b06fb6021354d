package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal returns the authenticated user id set by AuthMiddleware.
func Principal(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok
}

// AuthMiddleware verifies the Bearer token and stores the subject as the
// request's principal. The principal lives for the request only; there
// is no server-side session state.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, fmt.Errorf("authorization header required: %w", apperr.ErrUnauthenticated))
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeError(w, fmt.Errorf("invalid token: %w", apperr.ErrUnauthenticated))
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				writeError(w, fmt.Errorf("invalid token subject: %w", apperr.ErrUnauthenticated))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, subject)))
		})
	}
}

// writeError maps a service error onto the HTTP response. Internal
// detail stays in the log; the client sees a short message.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": apperr.Kind(err),
		"message": func() string {
			if status == http.StatusInternalServerError {
				return "internal error"
			}
			return err.Error()
		}(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
