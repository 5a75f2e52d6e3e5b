package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/config"
)

// memStore is a minimal account.Store for wiring tests
type memStore struct{}

func (m *memStore) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*account.User, error) {
	return nil, account.ErrNotFound
}
func (m *memStore) FindByID(ctx context.Context, id string) (*account.User, error) {
	return nil, account.ErrNotFound
}
func (m *memStore) Upsert(ctx context.Context, provider string, identity account.Identity) (*account.User, error) {
	return &account.User{ID: "user-1", Provider: provider, Role: account.RoleUser}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Frontend: config.FrontendConfig{
			BaseURL:      "https://codemurf.test",
			CallbackPath: "/auth/callback",
			ErrorPath:    "/auth",
		},
		Providers: map[string]config.ProviderConfig{
			"github": {
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				RedirectURL:  "https://auth.codemurf.test/auth/github/callback",
			},
		},
		JWT: config.JWTConfig{
			Secret: "test-secret",
			Issuer: "test-gateway",
		},
	}
}

func TestNewService(t *testing.T) {
	service, err := NewService(testConfig(), &memStore{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if service.handler == nil {
		t.Errorf("expected handler to be set")
	}
	if service.issuer == nil {
		t.Errorf("expected issuer to be set")
	}
	if _, ok := service.providers["github"]; !ok {
		t.Errorf("expected github provider to be configured")
	}
}

func TestNewServiceRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["bitbucket"] = config.ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://auth.codemurf.test/auth/bitbucket/callback",
	}

	_, err := NewService(cfg, &memStore{})
	if !errors.Is(err, ErrInvalidOAuthProvider) {
		t.Fatalf("expected ErrInvalidOAuthProvider, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = ""

	if _, err := NewService(cfg, &memStore{}); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestRegisterRoutes(t *testing.T) {
	service, err := NewService(testConfig(), &memStore{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/github/login"},
		{http.MethodGet, "/auth/github/callback"},
		{http.MethodPost, "/auth/refresh"},
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/healthz"},
	}
	for _, route := range routes {
		r, _ := http.NewRequest(route.method, route.path, nil)
		h, pattern := mux.Handler(r)
		if pattern == "" || h == nil {
			t.Errorf("route %s %s not registered", route.method, route.path)
		}
	}
}

func TestWrapWithCors(t *testing.T) {
	service, err := NewService(testConfig(), &memStore{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})
	wrapped := service.WrapWithCors(h)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	wrapped.ServeHTTP(rec, req)
	if rec.Code != 204 {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}
