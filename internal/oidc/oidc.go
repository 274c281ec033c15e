package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/mailcore/mailcore/internal/config"
	"github.com/mailcore/mailcore/pkg/middleware"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// NewKeycloakVerifier discovers the realm issuer of a Keycloak server.
func NewKeycloakVerifier(ctx context.Context, cfg config.KeycloakConfig) (*Verifier, error) {
	return NewVerifier(ctx, IssuerURL(cfg), cfg.ClientID)
}

// IssuerURL is the realm issuer of a Keycloak server.
func IssuerURL(cfg config.KeycloakConfig) string {
	return fmt.Sprintf("%s/realms/%s", strings.TrimRight(cfg.URL, "/"), cfg.Realm)
}

// Verify checks a raw ID token and returns it as a middleware.Token.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
