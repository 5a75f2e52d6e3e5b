package providers

import (
	"context"
	"errors"

	"github.com/codemurf/auth-gateway/internal/account"
	"golang.org/x/oauth2"
)

// Error categories for the two outbound calls a login makes. The callback
// handler logs which stage failed but surfaces only a generic error code to
// the browser.
var (
	ErrExchangeFailed = errors.New("token exchange failed")
	ErrProfileFailed  = errors.New("profile fetch failed")
)

// Provider defines the interface that all OAuth providers must implement
type Provider interface {
	// Name returns the provider identifier used in routes and as the
	// account upsert key ("google", "github").
	Name() string

	// AuthCodeURL returns the provider's authorization URL carrying the
	// registered redirect URI and the given CSRF state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a provider token. Codes are
	// single-use, so callers make exactly one attempt per callback.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// ResolveIdentity fetches the authenticated user's profile with the
	// provider token and normalizes it. The returned identity always has a
	// non-empty email.
	ResolveIdentity(ctx context.Context, token *oauth2.Token) (*account.Identity, error)
}
