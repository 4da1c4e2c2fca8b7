package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the part of GitHub's /user response a contributor account is
// built from.
type GitHubUser struct {
	ID        int64  `json:"id"`    // stable across renames; the upsert key
	Login     string `json:"login"` // handle, used when Name is empty
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when the user hides it; see Exchange
	AvatarURL string `json:"avatar_url"`
}

// DisplayName is what the leaderboard shows.
func (u *GitHubUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// gitHubEmail is one entry of GET /user/emails.
type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider runs the authorization code flow for contributor sign-in.
//
// THE FLOW:
//  1. /auth/github/login redirects to AuthURL(state), state kept in a cookie.
//  2. GitHub redirects to the callback with ?code=&state=.
//  3. Exchange swaps the code for a token server-side and reads the profile.
//
// The token is used for those few API calls and then dropped: nothing here
// acts on the user's behalf later.
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string // https://api.github.com outside tests
}

// NewGitHubProvider configures the OAuth app. callbackURL must equal the
// app's registered "Authorization callback URL".
//
// Scopes: read:user for the profile, user:email so a hidden email can still
// be read from /user/emails.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: "https://api.github.com",
	}
}

// AuthURL is where the login route redirects. state must be checked against
// the cookie on callback (CSRF).
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the caller's GitHub profile.
//
// When the profile email is hidden, the primary verified address from
// /user/emails is used instead. If there is none the email stays empty; the
// account is still created and keyed by GitHub ID.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	// Adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, tok)

	var u GitHubUser
	if err := p.get(ctx, client, "/user", &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	if u.Email == "" {
		var emails []gitHubEmail
		// A failure here only costs the email, not the login.
		if err := p.get(ctx, client, "/user/emails", &emails); err == nil {
			u.Email = primaryEmail(emails)
		}
	}
	return &u, nil
}

func (p *GitHubProvider) get(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}

func primaryEmail(emails []gitHubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}
