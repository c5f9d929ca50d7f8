package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/repository/repotest"
	"github.com/cppla/voicebloom/utils"
)

func TestMain(m *testing.M) {
	utils.UseRedis(nil)
	os.Exit(m.Run())
}

func newService(autoSignIn bool) (*Service, *repotest.Profiles) {
	profiles := repotest.NewProfiles()
	return NewService(profiles, Options{Secret: "test-secret", TokenTTL: time.Hour, AutoSignIn: autoSignIn}), profiles
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestSignUpWithAutoSignIn(t *testing.T) {
	svc, _ := newService(true)
	events, cancel := svc.Subscribe("")
	defer cancel()

	res, err := svc.SignUp(context.Background(), " New@Example.com ", "secret1")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "new@example.com", res.Profile.Email)
	assert.Equal(t, "new", res.Profile.Username)
	assert.NotEqual(t, "secret1", res.Profile.PasswordHash)

	assert.Equal(t, EventSignedUp, nextEvent(t, events).Type)
	assert.Equal(t, EventSignedIn, nextEvent(t, events).Type)

	claims, err := svc.Authenticate(context.Background(), res.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Profile.ID, claims.UserID)
}

func TestSignUpWithoutAutoSignIn(t *testing.T) {
	svc, _ := newService(false)
	res, err := svc.SignUp(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.NotNil(t, res.Profile)
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newService(true)
	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"bad email", "not-an-email", "secret1", "email"},
		{"short password", "a@example.com", "12345", "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tt.email, tt.password)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _ := newService(true)
	_, err := svc.SignUp(context.Background(), "dup@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.SignUp(context.Background(), "DUP@example.com", "secret2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignIn(t *testing.T) {
	svc, _ := newService(false)
	_, err := svc.SignUp(context.Background(), "user@example.com", "secret1")
	require.NoError(t, err)

	res, err := svc.SignIn(context.Background(), "user@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "bearer", res.Session.TokenType)

	_, err = svc.SignIn(context.Background(), "user@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignOutRevokesToken(t *testing.T) {
	svc, _ := newService(true)
	res, err := svc.SignUp(context.Background(), "out@example.com", "secret1")
	require.NoError(t, err)

	events, cancel := svc.Subscribe(res.Profile.ID)
	defer cancel()

	require.NoError(t, svc.SignOut(context.Background(), res.Session.AccessToken))
	assert.Equal(t, EventSignedOut, nextEvent(t, events).Type)

	_, err = svc.Authenticate(context.Background(), res.Session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, svc.SignOut(context.Background(), res.Session.AccessToken), ErrInvalidToken)
}

func TestSubscribeFiltersByUser(t *testing.T) {
	svc, _ := newService(false)
	events, cancel := svc.Subscribe("someone-else")

	_, err := svc.SignUp(context.Background(), "x@example.com", "secret1")
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
	cancel()
	_, open := <-events
	assert.False(t, open)
	// cancelling twice is harmless
	cancel()
}

func TestChangePassword(t *testing.T) {
	svc, _ := newService(true)
	res, err := svc.SignUp(context.Background(), "pw@example.com", "secret1")
	require.NoError(t, err)
	id := res.Profile.ID

	var verr *ValidationError
	require.ErrorAs(t, svc.ChangePassword(context.Background(), id, "secret2", "secret3"), &verr)
	assert.Equal(t, "confirm", verr.Field)
	require.ErrorAs(t, svc.ChangePassword(context.Background(), id, "abc", "abc"), &verr)
	assert.Equal(t, "password", verr.Field)

	require.NoError(t, svc.ChangePassword(context.Background(), id, "secret2", "secret2"))
	_, err = svc.SignIn(context.Background(), "pw@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(context.Background(), "pw@example.com", "secret2")
	assert.NoError(t, err)
}

func TestChangeEmail(t *testing.T) {
	svc, profiles := newService(true)
	a, err := svc.SignUp(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.SignUp(context.Background(), "b@example.com", "secret1")
	require.NoError(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, svc.ChangeEmail(context.Background(), a.Profile.ID, "nope"), &verr)
	assert.ErrorIs(t, svc.ChangeEmail(context.Background(), a.Profile.ID, "b@example.com"), ErrEmailTaken)

	require.NoError(t, svc.ChangeEmail(context.Background(), a.Profile.ID, "C@example.com"))
	p, err := profiles.GetByID(context.Background(), a.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", p.Email)
}

func newOAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "login": "octo"})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "Octo@Example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOAuthService(t *testing.T) (*Service, *repotest.Profiles) {
	srv := newOAuthServer(t)
	profiles := repotest.NewProfiles()
	svc := NewService(profiles, Options{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
		OAuth: OAuthOptions{
			GitHubClientID:     "client",
			GitHubClientSecret: "secret",
			RedirectBase:       "http://app.test/",
			Endpoints: map[string]ProviderEndpoints{
				"github": {
					AuthURL:     srv.URL + "/authorize",
					TokenURL:    srv.URL + "/token",
					UserInfoURL: srv.URL + "/user",
					EmailsURL:   srv.URL + "/emails",
				},
			},
		},
	})
	return svc, profiles
}

func TestAuthCodeURL(t *testing.T) {
	svc, _ := newOAuthService(t)
	assert.Equal(t, []string{"github"}, svc.Providers())

	raw, state, err := svc.AuthCodeURL(context.Background(), "github")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.Equal(t, "http://app.test/api/v1/auth/oauth/github/callback", u.Query().Get("redirect_uri"))

	_, _, err = svc.AuthCodeURL(context.Background(), "google")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOAuthSignInCreatesThenReusesProfile(t *testing.T) {
	svc, _ := newOAuthService(t)
	ctx := context.Background()

	_, state, err := svc.AuthCodeURL(ctx, "github")
	require.NoError(t, err)
	first, err := svc.OAuthSignIn(ctx, "github", "good-code", state)
	require.NoError(t, err)
	require.NotNil(t, first.Session)
	assert.Equal(t, "octo@example.com", first.Profile.Email)
	assert.Equal(t, "octo", first.Profile.Username)
	assert.Equal(t, "github", first.Profile.Provider)

	// the state is single use
	_, err = svc.OAuthSignIn(ctx, "github", "good-code", state)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, state, err = svc.AuthCodeURL(ctx, "github")
	require.NoError(t, err)
	second, err := svc.OAuthSignIn(ctx, "github", "good-code", state)
	require.NoError(t, err)
	assert.Equal(t, first.Profile.ID, second.Profile.ID)
}

func TestOAuthSignInLinksExistingEmail(t *testing.T) {
	svc, _ := newOAuthService(t)
	ctx := context.Background()
	existing, err := svc.SignUp(ctx, "octo@example.com", "secret1")
	require.NoError(t, err)

	_, state, err := svc.AuthCodeURL(ctx, "github")
	require.NoError(t, err)
	res, err := svc.OAuthSignIn(ctx, "github", "good-code", state)
	require.NoError(t, err)
	assert.Equal(t, existing.Profile.ID, res.Profile.ID)
}

func TestOAuthSignInExchangeFailure(t *testing.T) {
	svc, _ := newOAuthService(t)
	ctx := context.Background()
	_, state, err := svc.AuthCodeURL(ctx, "github")
	require.NoError(t, err)
	_, err = svc.OAuthSignIn(ctx, "github", "bad-code", state)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidState)
}
