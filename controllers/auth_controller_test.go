package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/auth"
)

func TestSignUpSignInSignOut(t *testing.T) {
	h := newHarness(t)

	w, env := h.do(t, nil, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "new@example.com", "password": "secret1", "confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created auth.Result
	decode(t, env.Data, &created)
	require.NotNil(t, created.Session)
	assert.Equal(t, "new@example.com", created.Profile.Email)

	w, env = h.do(t, nil, http.MethodPost, "/api/v1/auth/signin", map[string]string{
		"email": "new@example.com", "password": "wrong-one",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40106, env.Code)

	w, env = h.do(t, nil, http.MethodPost, "/api/v1/auth/signin", map[string]string{
		"email": "new@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var signedIn auth.Result
	decode(t, env.Data, &signedIn)
	u := user{id: signedIn.Profile.ID, token: signedIn.Session.AccessToken}

	w, _ = h.do(t, &u, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = h.do(t, &u, http.MethodPost, "/api/v1/auth/signout", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = h.do(t, &u, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40104, env.Code)
}

func TestSignUpRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   int
	}{
		{"mismatched confirmation", map[string]string{"email": "a@example.com", "password": "secret1", "confirm_password": "secret2"}, http.StatusBadRequest, 40002},
		{"malformed email", map[string]string{"email": "a@example", "password": "secret1"}, http.StatusBadRequest, 40003},
		{"short password", map[string]string{"email": "a@example.com", "password": "123"}, http.StatusBadRequest, 40003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := h.do(t, nil, http.MethodPost, "/api/v1/auth/signup", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Code)
		})
	}

	h.signUp(t, "taken@example.com")
	w, env := h.do(t, nil, http.MethodPost, "/api/v1/auth/signup", map[string]string{"email": "taken@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)
}

func TestChangePasswordAndEmail(t *testing.T) {
	h := newHarness(t)
	u := h.signUp(t, "me@example.com")
	h.signUp(t, "other@example.com")

	w, env := h.do(t, &u, http.MethodPatch, "/api/v1/auth/password", map[string]string{"password": "newpass1", "confirm_password": "different"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40004, env.Code)

	w, _ = h.do(t, &u, http.MethodPatch, "/api/v1/auth/password", map[string]string{"password": "newpass1", "confirm_password": "newpass1"})
	assert.Equal(t, http.StatusOK, w.Code)
	_, err := h.auth.SignIn(context.Background(), "me@example.com", "newpass1")
	assert.NoError(t, err)

	w, env = h.do(t, &u, http.MethodPatch, "/api/v1/auth/email", map[string]string{"email": "other@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)

	w, _ = h.do(t, &u, http.MethodPatch, "/api/v1/auth/email", map[string]string{"email": "renamed@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	toasts := h.store(u).Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "Password updated", toasts[0].Title)
	assert.Equal(t, "Email updated", toasts[1].Title)
}

func TestAuthEventsStream(t *testing.T) {
	h := newHarness(t)
	u := h.signUp(t, "stream@example.com")

	rec, stop := h.openStream(t, u, "/api/v1/auth/events")
	<-rec.flushed

	require.NoError(t, h.auth.ChangeEmail(context.Background(), u.id, "moved@example.com"))
	rec.waitFor(t, "event:user_updated")
	stop()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.body(), u.id)
}
