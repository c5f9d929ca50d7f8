package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/voicebloom/storage"
)

func TestMediaServe(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir(), "http://api.test", []byte("signing-key"))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = local.Upload(ctx, "user-1/1.webm", []byte("audio"), "audio/webm")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/media/*path", NewMediaController(local).Serve)

	serve := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	signed, err := local.SignedURL(ctx, "user-1/1.webm", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	w := serve(u.RequestURI())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio", w.Body.String())
	assert.Equal(t, "audio/webm", w.Header().Get("Content-Type"))

	q := u.Query()
	sig := []byte(q.Get("sig"))
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}
	q.Set("sig", string(sig))
	w = serve(u.Path + "?" + q.Encode())
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err = local.Upload(ctx, "user-1/2.webm", []byte("gone"), "audio/webm")
	require.NoError(t, err)
	missing, err := local.SignedURL(ctx, "user-1/2.webm", time.Minute)
	require.NoError(t, err)
	require.NoError(t, local.Delete(ctx, "user-1/2.webm"))
	mu, err := url.Parse(missing)
	require.NoError(t, err)
	w = serve(mu.RequestURI())
	assert.Equal(t, http.StatusNotFound, w.Code)
}
