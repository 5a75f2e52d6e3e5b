// Package auth wires the OAuth login flow: provider selection, the state
// store, the account store, and session issuance behind HTTP routes.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/auth/handlers"
	"github.com/codemurf/auth-gateway/internal/auth/middleware"
	"github.com/codemurf/auth-gateway/internal/auth/providers"
	"github.com/codemurf/auth-gateway/internal/auth/state"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/codemurf/auth-gateway/internal/token"
	"go.uber.org/fx"
)

// ErrInvalidOAuthProvider indicates an unsupported OAuth provider was configured
var ErrInvalidOAuthProvider = fmt.Errorf("unsupported OAuth provider")

// Service represents the OAuth login service
type Service struct {
	config    *config.Config
	providers map[string]providers.Provider
	issuer    *token.Issuer
	handler   *handlers.Handler
}

// NewService creates a new login service from configuration. Each configured
// provider is instantiated by name; an unknown name is a startup failure,
// not something to discover on the first login attempt.
func NewService(cfg *config.Config, accounts account.Store) (*Service, error) {
	provs := make(map[string]providers.Provider, len(cfg.Providers))
	for name := range cfg.Providers {
		pcfg := cfg.Providers[name]
		switch name {
		case "google":
			p, err := providers.NewGoogleProvider(context.Background(), &pcfg)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize provider %s: %w", name, err)
			}
			provs[name] = p
		case "github":
			provs[name] = providers.NewGitHubProvider(&pcfg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidOAuthProvider, name)
		}
	}

	issuer, err := token.NewIssuer(&cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	handler := handlers.NewHandler(
		provs,
		state.NewStore(cfg.JWT.StateTTL),
		accounts,
		issuer,
		cfg.Frontend,
	)

	return &Service{
		config:    cfg,
		providers: provs,
		issuer:    issuer,
		handler:   handler,
	}, nil
}

// RegisterRoutes registers all login-related routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/{provider}/login", s.handler.HandleLogin)
	mux.HandleFunc("GET /auth/{provider}/callback", s.handler.HandleCallback)
	mux.HandleFunc("POST /auth/refresh", s.handler.HandleRefresh)
	mux.Handle("GET /auth/me", s.Authenticate()(http.HandlerFunc(s.handler.HandleMe)))
	mux.HandleFunc("GET /healthz", s.handler.HandleHealth)
}

// WrapWithCors wraps the handler with the configured CORS policy
func (s *Service) WrapWithCors(handler http.Handler) http.Handler {
	return middleware.CORSWithOrigins(s.config.Server.AllowOrigins)(handler)
}

// Authenticate returns the bearer-token authentication middleware
func (s *Service) Authenticate() func(http.Handler) http.Handler {
	return middleware.Authenticate(s.issuer)
}

// Issuer returns the session token issuer
func (s *Service) Issuer() *token.Issuer {
	return s.issuer
}

// Module provides the auth service dependencies
var Module = fx.Module("auth",
	fx.Provide(
		NewService,
	),
)
