package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBaseURL = "https://api.github.com"

type GitHubProvider struct {
	oauth2Config *oauth2.Config
	apiBaseURL   string
}

func NewGitHubProvider(cfg *config.ProviderConfig) *GitHubProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	return &GitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       scopes,
		},
		apiBaseURL: githubAPIBaseURL,
	}
}

func (p *GitHubProvider) Name() string {
	return "github"
}

func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// ResolveIdentity fetches the GitHub profile. Users can make their email
// private, in which case the profile response carries no email and a second
// call to the emails endpoint is needed; if that also yields nothing usable,
// the noreply address GitHub assigns to every account stands in so the
// account store never sees an empty email.
func (p *GitHubProvider) ResolveIdentity(ctx context.Context, token *oauth2.Token) (*account.Identity, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.getJSON(ctx, client, p.apiBaseURL+"/user", &gh); err != nil {
		return nil, err
	}

	email := gh.Email
	if email == "" {
		resolved, err := p.primaryEmail(ctx, client)
		if err != nil {
			return nil, err
		}
		email = resolved
		if email == "" {
			email = fmt.Sprintf("%s@users.noreply.github.com", gh.Login)
		}
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}

	return &account.Identity{
		ProviderUserID: fmt.Sprintf("%d", gh.ID),
		Email:          email,
		DisplayName:    name,
		AvatarURL:      gh.AvatarURL,
	}, nil
}

// primaryEmail returns the user's primary verified email, or "" when the
// emails list has no such entry.
func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, client, p.apiBaseURL+"/user/emails", &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrProfileFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrProfileFailed, url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProfileFailed, err)
	}
	return nil
}
