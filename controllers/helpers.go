package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/voicebloom/middleware"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/utils"
)

// toastDescriptionLimit caps error text pushed into the session cache.
const toastDescriptionLimit = 100

const sseKeepAlive = 25 * time.Second

const communityCacheKey = "cache:community:recordings"

// Backend bundles what every handler needs to reach the collaborators.
type Backend struct {
	Sessions *session.Registry
	Timeout  time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

func (b Backend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Backend) logger() *zap.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return zap.NewNop()
}

// callContext bounds a collaborator call by the request and the backend timeout.
func (b Backend) callContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return context.WithCancel(ctx.Request.Context())
	}
	return context.WithTimeout(ctx.Request.Context(), b.Timeout)
}

// store returns the session cache of userID, or nil when sessions are off.
func (b Backend) store(ctx *gin.Context, userID string) *session.Store {
	if b.Sessions == nil || userID == "" {
		return nil
	}
	return b.Sessions.Get(ctx.Request.Context(), userID)
}

func (b Backend) toastSuccess(ctx *gin.Context, userID, title, description string) {
	if s := b.store(ctx, userID); s != nil {
		s.AddToast(session.ToastInput{Title: title, Description: description, Kind: session.KindSuccess})
	}
}

// fail answers a collaborator failure and surfaces it as an error toast.
func (b Backend) fail(ctx *gin.Context, userID string, status, code int, title string, err error) {
	b.logger().Warn(title, zap.String("user_id", userID), zap.Int("code", code), zap.Error(err))
	if s := b.store(ctx, userID); s != nil {
		s.AddToast(session.ToastInput{
			Title:       title,
			Description: utils.Truncate(describe(err), toastDescriptionLimit),
			Kind:        session.KindError,
		})
	}
	utils.Error(ctx, status, code, title)
}

func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	default:
		return err.Error()
	}
}

func getUserID(ctx *gin.Context) (string, bool) {
	id := middleware.UserID(ctx)
	return id, id != ""
}

// requireUser aborts with 401 when the request carries no user.
func requireUser(ctx *gin.Context) (string, bool) {
	id, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return id, ok
}

// openStream switches the response to server-sent events. Streams outlive
// the server write timeout, so the deadline is lifted where supported.
func openStream(ctx *gin.Context) {
	_ = http.NewResponseController(ctx.Writer).SetWriteDeadline(time.Time{})
	h := ctx.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	ctx.Status(http.StatusOK)
	ctx.Writer.Flush()
}

func sendEvent(ctx *gin.Context, name string, data interface{}) {
	ctx.SSEvent(name, data)
	ctx.Writer.Flush()
}

func sendKeepAlive(ctx *gin.Context) {
	_, _ = fmt.Fprint(ctx.Writer, ": ping\n\n")
	ctx.Writer.Flush()
}
