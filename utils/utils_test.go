package utils

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// keep tests off any configured Redis; the memory fallbacks are exercised instead
	UseRedis(nil)
	os.Exit(m.Run())
}

func TestTokenRoundTrip(t *testing.T) {
	token, expires, err := GenerateToken("secret", "user-1", "a@example.com", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)

	_, err = ParseToken("other", token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _, err := GenerateToken("secret", "user-1", "a@example.com", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", token)
	assert.Error(t, err)
}

func TestBlacklistMemoryFallback(t *testing.T) {
	ctx := context.Background()
	BlacklistToken(ctx, "live", time.Now().Add(time.Hour))
	BlacklistToken(ctx, "already-expired", time.Now().Add(-time.Second))

	assert.True(t, IsTokenBlacklisted(ctx, "live"))
	assert.False(t, IsTokenBlacklisted(ctx, "already-expired"))
	assert.False(t, IsTokenBlacklisted(ctx, "never-seen"))
}

func TestStateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	SaveState(ctx, "abc", time.Minute)
	assert.True(t, ConsumeState(ctx, "abc"))
	assert.False(t, ConsumeState(ctx, "abc"))

	SaveState(ctx, "old", time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.False(t, ConsumeState(ctx, "old"))
}

func TestCacheWithoutRedisIsNoop(t *testing.T) {
	ctx := context.Background()
	CacheSetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute)
	var out map[string]int
	assert.False(t, CacheGetJSON(ctx, "k", &out))
	CacheDelete(ctx, "k")
}

func TestPasswordRules(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("12345"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 73)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("123456"))

	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "nope"))
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.co", true},
		{"first.last@example.org", true},
		{"no-at.example.com", false},
		{"a@b", false},
		{"a b@c.d", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidEmail(tt.in), tt.in)
	}
	assert.Equal(t, "a@b.co", NormalizeEmail("  A@B.co "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 10))
	assert.Equal(t, "hé", Truncate("héllo", 2))
	assert.Len(t, []rune(Truncate(strings.Repeat("é", 150), 100)), 100)
	assert.Empty(t, Truncate("abc", 0))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello", SanitizeText(`<script>alert(1)</script>hello`))
	assert.Equal(t, "Tom & Jerry", SanitizeText(" <b>Tom</b> & Jerry "))
}

func TestRecoveryWithZap(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(Ginzap(zap.New(core), time.RFC3339, true), RecoveryWithZap(zap.New(core), true))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 50000, body.Code)
	assert.Equal(t, 1, logs.FilterMessage("recovered from panic").Len())
}

func TestGinzapLogsRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Ginzap(zap.New(core), time.RFC3339, true))
	r.GET("/ok", func(c *gin.Context) { Success(c, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	entries := logs.FilterMessage("/ok").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "x=1", entries[0].ContextMap()["query"])
}

func TestNewRollingFileLogger(t *testing.T) {
	path := t.TempDir() + "/logs/gin.log"
	l, err := NewRollingFileLogger(path, "info", 1, 1, 1, false)
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Sync())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
}

func TestSignupGuardMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	g := NewSignupGuard(10*time.Second, 2, func() time.Time { return now })

	assert.True(t, g.Allow(ctx, "1.1.1.1"))
	assert.False(t, g.Allow(ctx, "1.1.1.1"), "cooldown")
	assert.True(t, g.Allow(ctx, "2.2.2.2"), "other ips are independent")
	g.Record(ctx, "1.1.1.1")

	now = now.Add(11 * time.Second)
	assert.True(t, g.Allow(ctx, "1.1.1.1"))
	g.Record(ctx, "1.1.1.1")

	now = now.Add(11 * time.Second)
	assert.False(t, g.Allow(ctx, "1.1.1.1"), "daily cap reached")

	// next UTC day
	now = now.Add(time.Hour)
	assert.True(t, g.Allow(ctx, "1.1.1.1"))
}

func TestSignupGuardDisabled(t *testing.T) {
	var nilGuard *SignupGuard
	assert.True(t, nilGuard.Allow(context.Background(), "ip"))
	nilGuard.Record(context.Background(), "ip")

	g := NewSignupGuard(0, 0, nil)
	for i := 0; i < 5; i++ {
		assert.True(t, g.Allow(context.Background(), "ip"))
		g.Record(context.Background(), "ip")
	}
}

func TestServerStopRunsHooksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	streamDone := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stream" {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			close(streamDone)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := NewServer(ctx, "", handler, GraceOptions{
		ShutdownTimeout: 5 * time.Second,
		BeforeDrain:     []func(){func() { order = append(order, "before"); cancel() }},
		AfterDrain:      []func(){func() { order = append(order, "after") }},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.ServeListener(ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	stream, err := http.Get(base + "/stream")
	require.NoError(t, err)
	defer stream.Body.Close()

	srv.Stop()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	<-streamDone
	assert.Equal(t, []string{"before", "after"}, order)
}
