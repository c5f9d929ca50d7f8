package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/auth"
	"github.com/cppla/voicebloom/config"
	"github.com/cppla/voicebloom/prompts"
	"github.com/cppla/voicebloom/repository/repotest"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/utils"
)

func TestMain(m *testing.M) {
	utils.UseRedis(nil)
	os.Exit(m.Run())
}

func newRouter(t *testing.T, objects storage.ObjectStore, opts ...func(*config.AppConfig)) (*gin.Engine, *auth.Service) {
	t.Helper()
	profiles := repotest.NewProfiles()
	svc := auth.NewService(profiles, auth.Options{Secret: "s", TokenTTL: time.Hour, AutoSignIn: true})
	cfg := config.AppConfig{
		GinMode:                 "test",
		RateLimitPerMinute:      600,
		BackendTimeoutSeconds:   5,
		MaxAudioBytes:           1 << 20,
		SignedURLTTLSeconds:     3600,
		ListSignedURLTTLSeconds: 60,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := SetupRouter(Deps{
		Config:     cfg,
		Auth:       svc,
		Recordings: repotest.NewRecordings(),
		Feedbacks:  repotest.NewFeedbacks(),
		Profiles:   profiles,
		Objects:    objects,
		Sessions:   session.NewRegistry(session.NewMemoryPersister(), nil, nil),
		Prompts:    prompts.Default(),
		Location:   time.UTC,
	})
	return r, svc
}

func get(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterWiring(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir(), "http://api.test", []byte("k"))
	require.NoError(t, err)
	r, svc := newRouter(t, local)

	assert.Equal(t, http.StatusOK, get(r, "/health", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/prompts/daily", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/auth/providers", "").Code)

	w := get(r, "/api/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40400`)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/recordings", "").Code)

	res, err := svc.SignUp(context.Background(), "router@example.com", "secret1")
	require.NoError(t, err)
	token := res.Session.AccessToken
	for _, path := range []string{
		"/api/v1/auth/me",
		"/api/v1/profile",
		"/api/v1/recordings",
		"/api/v1/community/recordings",
		"/api/v1/progress/streak",
		"/api/v1/progress/activity",
		"/api/v1/progress/chart",
		"/api/v1/progress/stats",
		"/api/v1/session",
	} {
		assert.Equal(t, http.StatusOK, get(r, path, token).Code, path)
	}

	// the media route exists only for the local store
	assert.Equal(t, http.StatusForbidden, get(r, "/media/u/1.webm?expires=1&sig=x", "").Code)
}

func TestRouterWithoutLocalStore(t *testing.T) {
	r, _ := newRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, get(r, "/media/u/1.webm", "").Code)
}

func TestSignupThrottled(t *testing.T) {
	r, _ := newRouter(t, nil, func(c *config.AppConfig) { c.SignupCooldownSeconds = 60 })
	signup := func(email string) int {
		body := `{"email":"` + email + `","password":"secret1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusCreated, signup("one@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, signup("two@example.com"))
}
