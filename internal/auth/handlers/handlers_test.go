package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/auth/providers"
	"github.com/codemurf/auth-gateway/internal/auth/state"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/codemurf/auth-gateway/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider implements providers.Provider and counts calls so tests can
// assert that failed callbacks never reach the exchange.
type fakeProvider struct {
	name          string
	exchangeCalls int
	resolveCalls  int
	exchangeErr   error
	resolveErr    error
	identity      account.Identity
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(st string) string {
	return "https://provider.example/authorize?state=" + st
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "tok1", TokenType: "Bearer"}, nil
}

func (f *fakeProvider) ResolveIdentity(ctx context.Context, t *oauth2.Token) (*account.Identity, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	identity := f.identity
	return &identity, nil
}

// memStore is an in-memory account.Store with the same upsert semantics as
// the SQLite store.
type memStore struct {
	mu    sync.Mutex
	users map[string]*account.User
	seq   int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*account.User)}
}

func (m *memStore) key(provider, providerUserID string) string {
	return provider + "|" + providerUserID
}

func (m *memStore) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[m.key(provider, providerUserID)]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, account.ErrNotFound
}

func (m *memStore) FindByID(ctx context.Context, id string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memStore) Upsert(ctx context.Context, provider string, identity account.Identity) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(provider, identity.ProviderUserID)
	if u, ok := m.users[key]; ok {
		u.Email = identity.Email
		u.DisplayName = identity.DisplayName
		u.AvatarURL = identity.AvatarURL
		u.UpdatedAt = time.Now()
		copied := *u
		return &copied, nil
	}
	m.seq++
	u := &account.User{
		ID:             fmt.Sprintf("user-%d", m.seq),
		Provider:       provider,
		ProviderUserID: identity.ProviderUserID,
		Email:          identity.Email,
		DisplayName:    identity.DisplayName,
		AvatarURL:      identity.AvatarURL,
		Role:           account.RoleUser,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.users[key] = u
	copied := *u
	return &copied, nil
}

type fixture struct {
	handler *Handler
	github  *fakeProvider
	google  *fakeProvider
	states  *state.Store
	store   *memStore
	issuer  *token.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	github := &fakeProvider{
		name: "github",
		identity: account.Identity{
			ProviderUserID: "42",
			Email:          "alice@example.com",
			DisplayName:    "Alice",
		},
	}
	google := &fakeProvider{
		name: "google",
		identity: account.Identity{
			ProviderUserID: "99",
			Email:          "bob@example.com",
			DisplayName:    "Bob",
		},
	}

	issuer, err := token.NewIssuer(&config.JWTConfig{
		Secret: "test-secret",
		Issuer: "test-gateway",
	})
	require.NoError(t, err)

	states := state.NewStore(time.Minute)
	store := newMemStore()

	handler := NewHandler(
		map[string]providers.Provider{"github": github, "google": google},
		states,
		store,
		issuer,
		config.FrontendConfig{
			BaseURL:      "https://codemurf.test",
			CallbackPath: "/auth/callback",
			ErrorPath:    "/auth",
		},
	)

	return &fixture{
		handler: handler,
		github:  github,
		google:  google,
		states:  states,
		store:   store,
		issuer:  issuer,
	}
}

func doLogin(t *testing.T, f *fixture, provider string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/login", nil)
	r.SetPathValue("provider", provider)
	w := httptest.NewRecorder()
	f.handler.HandleLogin(w, r)
	return w
}

func doCallback(t *testing.T, f *fixture, provider string, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/callback?"+query.Encode(), nil)
	r.SetPathValue("provider", provider)
	w := httptest.NewRecorder()
	f.handler.HandleCallback(w, r)
	return w
}

func locationURL(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestLoginRedirectsToProviderWithState(t *testing.T) {
	f := newFixture(t)

	w := doLogin(t, f, "github")
	loc := locationURL(t, w)

	assert.Equal(t, "provider.example", loc.Host)
	st := loc.Query().Get("state")
	require.NotEmpty(t, st)
	assert.True(t, f.states.Consume(st, "github"), "issued state must be valid for the callback")
}

func TestLoginRejectsUnsupportedProvider(t *testing.T) {
	f := newFixture(t)

	w := doLogin(t, f, "gitlab")
	loc := locationURL(t, w)

	assert.Equal(t, "https://codemurf.test/auth?error=unsupported_provider", loc.String())
}

func TestCallbackPassesThroughProviderError(t *testing.T) {
	f := newFixture(t)

	w := doCallback(t, f, "google", url.Values{"error": {"access_denied"}})
	loc := locationURL(t, w)

	assert.Equal(t, "https://codemurf.test/auth?error=access_denied", loc.String())
	assert.Zero(t, f.google.exchangeCalls, "exchanger must not run on provider error")
	assert.Zero(t, f.google.resolveCalls, "resolver must not run on provider error")
}

func TestCallbackRequiresCode(t *testing.T) {
	f := newFixture(t)

	w := doCallback(t, f, "github", url.Values{})
	loc := locationURL(t, w)

	assert.Equal(t, "https://codemurf.test/auth?error=missing_code", loc.String())
	assert.Zero(t, f.github.exchangeCalls)
}

func TestCallbackRequiresValidState(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query url.Values
	}{
		{name: "missing state", query: url.Values{"code": {"abc123"}}},
		{name: "unknown state", query: url.Values{"code": {"abc123"}, "state": {"forged"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doCallback(t, f, "github", tt.query)
			loc := locationURL(t, w)

			assert.Equal(t, "https://codemurf.test/auth?error=invalid_state", loc.String())
			assert.Zero(t, f.github.exchangeCalls, "exchanger must not run without a valid state")
		})
	}
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	f := newFixture(t)

	st, err := f.states.Issue("github")
	require.NoError(t, err)

	first := doCallback(t, f, "github", url.Values{"code": {"abc123"}, "state": {st}})
	require.Equal(t, http.StatusFound, first.Code)
	assert.Equal(t, 1, f.github.exchangeCalls)

	replay := doCallback(t, f, "github", url.Values{"code": {"abc123"}, "state": {st}})
	loc := locationURL(t, replay)
	assert.Equal(t, "https://codemurf.test/auth?error=invalid_state", loc.String())
	assert.Equal(t, 1, f.github.exchangeCalls, "replayed state must not trigger a second exchange")
}

func TestCallbackSuccessIssuesSessionAndCreatesUser(t *testing.T) {
	f := newFixture(t)

	st, err := f.states.Issue("github")
	require.NoError(t, err)

	w := doCallback(t, f, "github", url.Values{"code": {"abc123"}, "state": {st}})
	loc := locationURL(t, w)

	assert.Equal(t, "codemurf.test", loc.Host)
	assert.Equal(t, "/auth/callback", loc.Path)

	q := loc.Query()
	userID := q.Get("user_id")
	require.NotEmpty(t, userID)

	claims, err := f.issuer.VerifyAccess(q.Get("access_token"))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)

	refreshUserID, err := f.issuer.VerifyRefresh(q.Get("refresh_token"))
	require.NoError(t, err)
	assert.Equal(t, userID, refreshUserID)

	user, err := f.store.FindByProviderIdentity(context.Background(), "github", "42")
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, account.RoleUser, user.Role)
}

func TestCallbackReusesExistingAccount(t *testing.T) {
	f := newFixture(t)

	existing, err := f.store.Upsert(context.Background(), "google", account.Identity{
		ProviderUserID: "99",
		Email:          "stale@example.com",
		DisplayName:    "Stale Name",
	})
	require.NoError(t, err)

	st, err := f.states.Issue("google")
	require.NoError(t, err)

	w := doCallback(t, f, "google", url.Values{"code": {"abc123"}, "state": {st}})
	loc := locationURL(t, w)

	assert.Equal(t, existing.ID, loc.Query().Get("user_id"), "existing account must keep its id")

	refreshed, err := f.store.FindByProviderIdentity(context.Background(), "google", "99")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", refreshed.Email, "profile fields must be refreshed")
}

func TestCallbackMapsPipelineFailuresToGenericError(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name:  "exchange failure",
			setup: func(f *fixture) { f.github.exchangeErr = providers.ErrExchangeFailed },
		},
		{
			name:  "profile failure",
			setup: func(f *fixture) { f.github.resolveErr = providers.ErrProfileFailed },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			st, err := f.states.Issue("github")
			require.NoError(t, err)

			w := doCallback(t, f, "github", url.Values{"code": {"abc123"}, "state": {st}})
			loc := locationURL(t, w)

			assert.Equal(t, "https://codemurf.test/auth?error=oauth_failed", loc.String(),
				"internal failure detail must not leak into the redirect")
		})
	}
}

func TestRefreshIssuesNewSession(t *testing.T) {
	f := newFixture(t)

	user, err := f.store.Upsert(context.Background(), "github", f.github.identity)
	require.NoError(t, err)

	session, err := f.issuer.IssueSession(user)
	require.NoError(t, err)

	form := url.Values{"refresh_token": {session.RefreshToken}}
	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.handler.HandleRefresh(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
	assert.Contains(t, w.Body.String(), user.ID)
}

func TestRefreshRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"refresh_token": {"garbage"}}
	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.handler.HandleRefresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)

	user, err := f.store.Upsert(context.Background(), "github", f.github.identity)
	require.NoError(t, err)

	session, err := f.issuer.IssueSession(user)
	require.NoError(t, err)

	form := url.Values{"refresh_token": {session.AccessToken}}
	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.handler.HandleRefresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "an access token is not a refresh credential")
}

func TestRefreshRejectsUnknownUser(t *testing.T) {
	f := newFixture(t)

	ghost := &account.User{ID: "user-ghost", Email: "ghost@example.com", Role: account.RoleUser}
	session, err := f.issuer.IssueSession(ghost)
	require.NoError(t, err)

	form := url.Values{"refresh_token": {session.RefreshToken}}
	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.handler.HandleRefresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshRequiresToken(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	w := httptest.NewRecorder()
	f.handler.HandleRefresh(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
