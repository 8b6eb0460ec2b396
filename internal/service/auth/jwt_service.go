// Package auth verifies bearer credentials. Identity provisioning (user
// registration, credential issuance) is owned by an external collaborator;
// this package only validates tokens it receives and mints them for tests
// and tooling.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService defines operations for bearer-credential verification.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the given user.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken validates the provided token string and extracts the
	// claims, or returns ErrInvalidToken / ErrExpiredToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the verified content of a bearer credential.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
