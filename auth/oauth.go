package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

const oauthStateTTL = 10 * time.Minute

var (
	ErrUnknownProvider = errors.New("unsupported oauth provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

// OAuthOptions carries the client credentials of each provider. A provider
// without a client id is disabled.
type OAuthOptions struct {
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	RedirectBase       string

	// Endpoints overrides provider URLs, keyed by provider name.
	Endpoints map[string]ProviderEndpoints
}

// ProviderEndpoints locates the token exchange and the user info API.
type ProviderEndpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	EmailsURL   string
}

type oauthUser struct {
	ID       string
	Username string
	Email    string
}

type provider struct {
	name   string
	config *oauth2.Config
	ep     ProviderEndpoints
	fetch  func(ctx context.Context, client *http.Client, ep ProviderEndpoints) (*oauthUser, error)
}

func buildProviders(o OAuthOptions) map[string]*provider {
	out := make(map[string]*provider)
	base := strings.TrimRight(o.RedirectBase, "/")
	if o.GitHubClientID != "" {
		ep := ProviderEndpoints{
			AuthURL:     github.Endpoint.AuthURL,
			TokenURL:    github.Endpoint.TokenURL,
			UserInfoURL: "https://api.github.com/user",
			EmailsURL:   "https://api.github.com/user/emails",
		}
		out["github"] = newProvider("github", o.GitHubClientID, o.GitHubClientSecret, base,
			[]string{"read:user", "user:email"}, mergeEndpoints(ep, o.Endpoints["github"]), fetchGitHubUser)
	}
	if o.GoogleClientID != "" {
		ep := ProviderEndpoints{
			AuthURL:     google.Endpoint.AuthURL,
			TokenURL:    google.Endpoint.TokenURL,
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		}
		out["google"] = newProvider("google", o.GoogleClientID, o.GoogleClientSecret, base,
			[]string{"openid", "profile", "email"}, mergeEndpoints(ep, o.Endpoints["google"]), fetchGoogleUser)
	}
	return out
}

func newProvider(name, id, secret, base string, scopes []string, ep ProviderEndpoints,
	fetch func(context.Context, *http.Client, ProviderEndpoints) (*oauthUser, error)) *provider {
	return &provider{
		name: name,
		config: &oauth2.Config{
			ClientID:     id,
			ClientSecret: secret,
			Endpoint:     oauth2.Endpoint{AuthURL: ep.AuthURL, TokenURL: ep.TokenURL},
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/%s/callback", base, name),
			Scopes:       scopes,
		},
		ep:    ep,
		fetch: fetch,
	}
}

func mergeEndpoints(def, override ProviderEndpoints) ProviderEndpoints {
	if override.AuthURL != "" {
		def.AuthURL = override.AuthURL
	}
	if override.TokenURL != "" {
		def.TokenURL = override.TokenURL
	}
	if override.UserInfoURL != "" {
		def.UserInfoURL = override.UserInfoURL
	}
	if override.EmailsURL != "" {
		def.EmailsURL = override.EmailsURL
	}
	return def
}

// Providers lists the enabled provider names.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for _, name := range []string{"github", "google"} {
		if _, ok := s.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// AuthCodeURL starts an OAuth flow and returns the consent URL and its state.
func (s *Service) AuthCodeURL(ctx context.Context, name string) (string, string, error) {
	p, ok := s.providers[name]
	if !ok {
		return "", "", ErrUnknownProvider
	}
	state := uuid.NewString()
	utils.SaveState(ctx, state, oauthStateTTL)
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// OAuthSignIn completes an OAuth flow. The state is single use.
func (s *Service) OAuthSignIn(ctx context.Context, name, code, state string) (Result, error) {
	p, ok := s.providers[name]
	if !ok {
		return Result{}, ErrUnknownProvider
	}
	if state == "" || !utils.ConsumeState(ctx, state) {
		return Result{}, ErrInvalidState
	}
	if code == "" {
		return Result{}, &ValidationError{Field: "code", Message: "missing authorization code"}
	}
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("exchange %s code: %w", name, err)
	}
	info, err := p.fetch(ctx, p.config.Client(ctx, token), p.ep)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s user: %w", name, err)
	}

	profile, created, err := s.findOrCreateOAuthProfile(ctx, name, info)
	if err != nil {
		return Result{}, err
	}
	if created {
		s.publish(EventSignedUp, profile.ID)
	}
	sess, err := s.issue(profile)
	if err != nil {
		return Result{}, err
	}
	s.publish(EventSignedIn, profile.ID)
	return Result{Profile: profile, Session: sess}, nil
}

func (s *Service) findOrCreateOAuthProfile(ctx context.Context, name string, info *oauthUser) (*models.Profile, bool, error) {
	if p, err := s.profiles.GetByProvider(ctx, name, info.ID); err == nil {
		return p, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	email := utils.NormalizeEmail(info.Email)
	if email != "" {
		if p, err := s.profiles.GetByEmail(ctx, email); err == nil {
			return p, false, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
	}

	username := info.Username
	if username == "" {
		username = defaultUsername(email)
	}
	p := &models.Profile{
		ID:         uuid.NewString(),
		Email:      email,
		Username:   utils.Truncate(username, 64),
		Provider:   name,
		ProviderID: info.ID,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, false, fmt.Errorf("create profile: %w", err)
	}
	return p, true, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client, ep ProviderEndpoints) (*oauthUser, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, ep.UserInfoURL, &payload); err != nil {
		return nil, err
	}
	email := payload.Email
	if email == "" && ep.EmailsURL != "" {
		email, _ = fetchGitHubEmail(ctx, client, ep.EmailsURL)
	}
	return &oauthUser{ID: fmt.Sprintf("%d", payload.ID), Username: payload.Login, Email: email}, nil
}

func fetchGitHubEmail(ctx context.Context, client *http.Client, url string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, url, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client, ep ProviderEndpoints) (*oauthUser, error) {
	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, ep.UserInfoURL, &payload); err != nil {
		return nil, err
	}
	return &oauthUser{ID: payload.ID, Username: payload.Name, Email: payload.Email}, nil
}
