package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrGoogleDisabled is returned when no Google client id is configured.
var ErrGoogleDisabled = errors.New("google login is not configured")

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleVerifier checks a Google ID token.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// IDTokenVerifier validates tokens against Google's public keys for one
// OAuth client id.
type IDTokenVerifier struct {
	clientID string
}

// NewIDTokenVerifier creates a verifier for clientID.
func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID}
}

// Verify validates idToken and extracts the identity claims.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if v == nil || v.clientID == "" {
		return nil, ErrGoogleDisabled
	}
	payload, err := idtoken.Validate(ctx, idToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}
	id := &GoogleIdentity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	if name, ok := payload.Claims["name"].(string); ok {
		id.Name = name
	}
	if id.Subject == "" || id.Email == "" {
		return nil, errors.New("id token lacks subject or email")
	}
	return id, nil
}
