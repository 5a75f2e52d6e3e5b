package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	userInfoURL  string
}

func NewGoogleProvider(ctx context.Context, cfg *config.ProviderConfig) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}

	return &GoogleProvider{
		oauth2Config: oauth2Cfg,
		verifier:     provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		userInfoURL:  googleUserInfoURL,
	}, nil
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// ResolveIdentity prefers the ID token bundled with the exchange response
// and falls back to the userinfo endpoint when the response carried none.
func (p *GoogleProvider) ResolveIdentity(ctx context.Context, token *oauth2.Token) (*account.Identity, error) {
	if rawIDToken, ok := token.Extra("id_token").(string); ok && p.verifier != nil {
		return p.identityFromIDToken(ctx, rawIDToken)
	}
	return p.identityFromUserInfo(ctx, token)
}

func (p *GoogleProvider) identityFromIDToken(ctx context.Context, rawIDToken string) (*account.Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: verify id token: %v", ErrProfileFailed, err)
	}

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrProfileFailed, err)
	}

	return &account.Identity{
		ProviderUserID: claims.Sub,
		Email:          claims.Email,
		DisplayName:    claims.Name,
		AvatarURL:      claims.Picture,
	}, nil
}

func (p *GoogleProvider) identityFromUserInfo(ctx context.Context, token *oauth2.Token) (*account.Identity, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: call userinfo endpoint: %v", ErrProfileFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo request failed with status %d", ErrProfileFailed, resp.StatusCode)
	}

	var userInfo struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo response: %v", ErrProfileFailed, err)
	}

	return &account.Identity{
		ProviderUserID: userInfo.Sub,
		Email:          userInfo.Email,
		DisplayName:    userInfo.Name,
		AvatarURL:      userInfo.Picture,
	}, nil
}
