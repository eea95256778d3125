// internal/pkg/jwt/jwt.go
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	TokenTypeAccess = "access"

	RoleBeneficiary = "beneficiary"
	RoleAdmin       = "admin"
)

// Claims represents access JWT claims issued by the platform auth service.
// BeneficiaryID is empty for admin tokens.
type Claims struct {
	BeneficiaryID uuid.UUID `json:"beneficiary_id"`
	WorkspaceID   uuid.UUID `json:"workspace_id"`
	Role          string    `json:"role"`
	Type          string    `json:"type"`
	jwt.RegisteredClaims
}

// Service validates access tokens with a shared HMAC secret
type Service struct {
	secret []byte
}

// NewService creates JWT service
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// GenerateAccessToken signs a token; used by tooling and tests.
func (s *Service) GenerateAccessToken(beneficiaryID, workspaceID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		BeneficiaryID: beneficiaryID,
		WorkspaceID:   workspaceID,
		Role:          role,
		Type:          TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   beneficiaryID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken validates and parses access token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
