package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/inkwatch/inkwatch/internal/errs"
)

// Identity is what an auth agent learns about a user from one code
// exchange. AuthUID is the provider-scoped stable subject.
type Identity struct {
	AuthUID string
	Name    *string
	Email   *string
	Picture *string
}

// AuthAgent exchanges an OAuth2 authorization code for a verified identity.
type AuthAgent interface {
	Name() string
	Exchange(ctx context.Context, code, redirectURI string) (*Identity, error)
}

// Registry maps auth agent names to agents.
type Registry map[string]AuthAgent

// Register adds an agent under its own name.
func (r Registry) Register(a AuthAgent) { r[a.Name()] = a }

// Lookup resolves a name; ok is false for unknown agents.
func (r Registry) Lookup(name string) (AuthAgent, bool) {
	a, ok := r[name]
	return a, ok
}

const googleIssuer = "https://accounts.google.com"

// Google exchanges authorization codes against Google's OIDC endpoints and
// verifies the returned ID token before trusting its claims.
type Google struct {
	clientID     string
	clientSecret string
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
}

// NewGoogle discovers Google's OIDC configuration once at startup.
func NewGoogle(ctx context.Context, clientID, clientSecret string) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errs.Network(err)
	}
	return &Google{
		clientID:     clientID,
		clientSecret: clientSecret,
		provider:     provider,
		verifier:     provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (*Google) Name() string { return "google" }

// Exchange swaps the code for tokens, verifies the ID token and extracts
// the profile claims.
func (g *Google) Exchange(ctx context.Context, code, redirectURI string) (*Identity, error) {
	cfg := oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     g.provider.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, errs.Network(err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errs.Unauthorized()
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errs.Unauthorized()
	}

	var claims struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errs.Internal(err)
	}
	if claims.Sub == "" {
		return nil, errs.Unauthorized()
	}

	return &Identity{
		AuthUID: claims.Sub,
		Name:    optional(claims.Name),
		Email:   optional(claims.Email),
		Picture: optional(claims.Picture),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
