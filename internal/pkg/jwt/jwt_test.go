package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateAccessTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret")
	beneficiaryID := uuid.New()
	workspaceID := uuid.New()

	token, err := svc.GenerateAccessToken(beneficiaryID, workspaceID, RoleBeneficiary, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.BeneficiaryID != beneficiaryID || claims.WorkspaceID != workspaceID || claims.Role != RoleBeneficiary {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateAccessTokenRejectsExpiredAndForeign(t *testing.T) {
	svc := NewService("test-secret")

	expired, err := svc.GenerateAccessToken(uuid.New(), uuid.New(), RoleBeneficiary, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateAccessToken(expired); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	foreign, err := NewService("other-secret").GenerateAccessToken(uuid.New(), uuid.New(), RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateAccessToken(foreign); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
