package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/pkg/jwt"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
)

type contextKey string

const (
	BeneficiaryIDKey contextKey = "beneficiary_id"
	WorkspaceIDKey   contextKey = "workspace_id"
	RoleKey          contextKey = "role"
)

// Auth returns middleware that validates JWT
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				response.Unauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				if err == jwt.ErrExpiredToken {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), BeneficiaryIDKey, claims.BeneficiaryID)
			ctx = context.WithValue(ctx, WorkspaceIDKey, claims.WorkspaceID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetBeneficiaryID extracts beneficiary ID from context
func GetBeneficiaryID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(BeneficiaryIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetWorkspaceID extracts workspace ID from context
func GetWorkspaceID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(WorkspaceIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetRole extracts role from context
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// RequireRole returns middleware that checks user role
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetRole(r.Context())

			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			response.Forbidden(w, "Insufficient permissions")
		})
	}
}

// RequireBeneficiary rejects tokens that carry no beneficiary.
func RequireBeneficiary() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetRole(r.Context()) != jwt.RoleBeneficiary || GetBeneficiaryID(r.Context()) == uuid.Nil {
				response.Forbidden(w, "Beneficiary token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that requires admin role
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(jwt.RoleAdmin)
}

// CronAuth guards scheduler endpoints with a shared bearer secret.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				response.Unauthorized(w, "Invalid cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
