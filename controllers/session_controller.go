package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/utils"
)

// SessionController exposes the per-user client cache.
type SessionController struct {
	Backend
	maxAudioBytes int64
}

// NewSessionController creates a new SessionController instance.
func NewSessionController(b Backend, maxAudioBytes int64) *SessionController {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 20 << 20
	}
	return &SessionController{Backend: b, maxAudioBytes: maxAudioBytes}
}

type pendingAudioInfo struct {
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// snapshotPayload is a snapshot with the audio bytes replaced by their size;
// the clip itself is served by GetAudio.
type snapshotPayload struct {
	Recordings   []models.RecordingView `json:"recordings"`
	Toasts       []session.Toast        `json:"toasts"`
	IsRecording  bool                   `json:"is_recording"`
	PendingAudio *pendingAudioInfo      `json:"pending_audio"`
}

func payloadOf(s session.Snapshot) snapshotPayload {
	p := snapshotPayload{Recordings: s.Recordings, Toasts: s.Toasts, IsRecording: s.IsRecording}
	if s.PendingAudio != nil {
		p.PendingAudio = &pendingAudioInfo{ContentType: s.PendingAudio.ContentType, Size: len(s.PendingAudio.Data)}
	}
	return p
}

func (s *SessionController) current(ctx *gin.Context) (*session.Store, bool) {
	userID, ok := requireUser(ctx)
	if !ok {
		return nil, false
	}
	store := s.store(ctx, userID)
	if store == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "session cache unavailable")
		return nil, false
	}
	return store, true
}

// Get returns the cache snapshot.
func (s *SessionController) Get(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, payloadOf(store.Snapshot()))
}

// Stream pushes a snapshot on connect and after every change.
func (s *SessionController) Stream(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	updates := make(chan session.Snapshot, 8)
	unsubscribe := store.Subscribe(func(snap session.Snapshot) {
		select {
		case updates <- snap:
		default:
			// the next change carries the full state anyway
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	openStream(ctx)
	sendEvent(ctx, "snapshot", payloadOf(store.Snapshot()))
	done := ctx.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case <-store.Done():
			// signed out
			return
		case snap := <-updates:
			sendEvent(ctx, "snapshot", payloadOf(snap))
		case <-ticker.C:
			sendKeepAlive(ctx)
		}
	}
}

// AddToast lets the client queue its own notices.
func (s *SessionController) AddToast(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	kind, err := session.ParseKind(req.Type)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, err.Error())
		return
	}
	title := utils.SanitizeText(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40032, "title cannot be empty")
		return
	}
	toast := store.AddToast(session.ToastInput{
		Title:       utils.Truncate(title, toastDescriptionLimit),
		Description: utils.Truncate(utils.SanitizeText(req.Description), toastDescriptionLimit),
		Kind:        kind,
	})
	utils.Created(ctx, gin.H{"toast": toast})
}

// DismissToast removes a toast before it expires.
func (s *SessionController) DismissToast(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	if !store.RemoveToast(ctx.Param("id")) {
		utils.Error(ctx, http.StatusNotFound, 40430, "toast not found")
		return
	}
	utils.Success(ctx, gin.H{"id": ctx.Param("id")})
}

// SetRecording toggles the recording flag.
func (s *SessionController) SetRecording(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	var req struct {
		Recording *bool `json:"recording"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Recording == nil {
		utils.Error(ctx, http.StatusBadRequest, 40033, "recording flag required")
		return
	}
	store.SetRecording(*req.Recording)
	utils.Success(ctx, gin.H{"is_recording": *req.Recording})
}

// PutAudio holds a clip until it is saved or dropped.
func (s *SessionController) PutAudio(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	audio, status, code, msg := pendingFromBody(ctx, s.maxAudioBytes)
	if status != 0 {
		utils.Error(ctx, status, code, msg)
		return
	}
	store.SetPendingAudio(audio)
	utils.Success(ctx, gin.H{"pending_audio": pendingAudioInfo{ContentType: audio.ContentType, Size: len(audio.Data)}})
}

// GetAudio returns the pending clip.
func (s *SessionController) GetAudio(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	audio := store.PendingAudio()
	if audio == nil {
		utils.Error(ctx, http.StatusNotFound, 40431, "no pending audio")
		return
	}
	ctx.Data(http.StatusOK, audio.ContentType, audio.Data)
}

// DeleteAudio drops the pending clip.
func (s *SessionController) DeleteAudio(ctx *gin.Context) {
	store, ok := s.current(ctx)
	if !ok {
		return
	}
	store.ClearPendingAudio()
	utils.Success(ctx, gin.H{"pending_audio": nil})
}

// pendingFromBody reads a raw audio body of at most limit bytes.
func pendingFromBody(ctx *gin.Context, limit int64) (*session.PendingAudio, int, int, string) {
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, 41301, "audio too large"
		}
		return nil, http.StatusBadRequest, 40011, "unreadable audio upload"
	}
	if buf.Len() == 0 {
		return nil, http.StatusBadRequest, 40012, "no recording found"
	}
	contentType := ctx.ContentType()
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buf.Bytes())
	}
	return &session.PendingAudio{Data: buf.Bytes(), ContentType: contentType}, 0, 0, ""
}
