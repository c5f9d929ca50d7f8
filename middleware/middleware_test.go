package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/voicebloom/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (*utils.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &utils.Claims{UserID: "user-1", Email: "a@example.com"}, nil
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthRequired(stubAuth{}))
	handler := func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+c.GetString(ContextTokenKey))
	}
	r.GET("/me", handler)
	r.POST("/me", handler)
	return r
}

func TestAuthRequired(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		header string
		status int
		body   string
	}{
		{"missing header", http.MethodGet, "/me", "", http.StatusUnauthorized, `"code":40101`},
		{"wrong scheme", http.MethodGet, "/me", "Basic abc", http.StatusUnauthorized, `"code":40102`},
		{"empty token", http.MethodGet, "/me", "Bearer   ", http.StatusUnauthorized, `"code":40103`},
		{"rejected token", http.MethodGet, "/me", "Bearer nope", http.StatusUnauthorized, `"code":40104`},
		{"valid token", http.MethodGet, "/me", "Bearer good", http.StatusOK, "user-1|good"},
		{"query token on GET", http.MethodGet, "/me?access_token=good", "", http.StatusOK, "user-1|good"},
		{"query token ignored on POST", http.MethodPost, "/me?access_token=good", "", http.StatusUnauthorized, `"code":40101`},
	}
	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	// 4 per minute gives a burst of 2
	r.GET("/", RateLimitMiddleware(4), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	// buckets are per client address
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2"))
}
