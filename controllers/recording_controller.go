package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/utils"
)

const (
	maxTitleLength    = 255
	communityLimit    = 100
	communityCacheTTL = 30 * time.Second
	// multipart framing on top of the audio payload
	multipartOverhead = 1 << 20
)

// RecordingOptions tune uploads and signed URLs.
type RecordingOptions struct {
	SaveURLTTL    time.Duration
	ListURLTTL    time.Duration
	MaxAudioBytes int64
}

// RecordingController manages the recordings of the current user and the
// community listing.
type RecordingController struct {
	Backend
	recordings repository.RecordingRepository
	objects    storage.ObjectStore
	opts       RecordingOptions
}

// NewRecordingController creates a new RecordingController instance.
func NewRecordingController(b Backend, recordings repository.RecordingRepository, objects storage.ObjectStore, opts RecordingOptions) *RecordingController {
	if opts.SaveURLTTL <= 0 {
		opts.SaveURLTTL = time.Hour
	}
	if opts.ListURLTTL <= 0 {
		opts.ListURLTTL = time.Minute
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 20 << 20
	}
	return &RecordingController{Backend: b, recordings: recordings, objects: objects, opts: opts}
}

// Create stores a recording. The audio comes from the multipart "audio"
// field, or from the pending buffer of the session cache when absent.
func (r *RecordingController) Create(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, r.opts.MaxAudioBytes+multipartOverhead)

	visibility, err := models.ParseVisibility(defaultString(ctx.PostForm("visibility"), string(models.VisibilityPrivate)))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid visibility")
		return
	}
	prompt := utils.SanitizeText(ctx.PostForm("prompt"))
	title := utils.Truncate(utils.SanitizeText(ctx.PostForm("title")), maxTitleLength)

	audio, status, code, msg := r.readAudio(ctx, userID)
	if status != 0 {
		utils.Error(ctx, status, code, msg)
		return
	}

	c, cancel := r.callContext(ctx)
	defer cancel()
	now := r.now()
	objectPath := storage.RecordingPath(userID, now, storage.ExtensionFor(audio.ContentType))
	stored, err := r.objects.Upload(c, objectPath, audio.Data, audio.ContentType)
	if err != nil {
		r.fail(ctx, userID, http.StatusBadGateway, 50210, "Failed to save", err)
		return
	}

	rec := &models.Recording{
		ID:         uuid.NewString(),
		UserID:     userID,
		AudioURL:   stored,
		Visibility: visibility,
		Prompt:     prompt,
		Title:      title,
		CreatedAt:  now.UTC(),
	}
	if err := r.recordings.Create(c, rec); err != nil {
		if derr := r.objects.Delete(c, stored); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
			r.logger().Warn("remove orphaned audio failed", zap.String("path", stored), zap.Error(derr))
		}
		r.fail(ctx, userID, http.StatusInternalServerError, 50010, "Failed to save", err)
		return
	}

	signed := r.sign(c, stored, r.opts.SaveURLTTL)
	view := rec.View(signed)
	if s := r.store(ctx, userID); s != nil {
		s.ClearPendingAudio()
		s.SetRecording(false)
		s.SetRecordings(append([]models.RecordingView{view}, s.Recordings()...))
		s.AddToast(session.ToastInput{
			Title:       "Recording saved",
			Description: "You can hear it in the Private Journal.",
			Kind:        session.KindSuccess,
		})
	}
	if visibility.Shared() {
		utils.CacheDelete(c, communityCacheKey)
	}
	utils.Created(ctx, gin.H{"recording": view, "file_path": stored, "signed_url": signed})
}

func (r *RecordingController) readAudio(ctx *gin.Context, userID string) (*session.PendingAudio, int, int, string) {
	fh, err := ctx.FormFile("audio")
	if err == nil {
		if fh.Size > r.opts.MaxAudioBytes {
			return nil, http.StatusRequestEntityTooLarge, 41301, "audio too large"
		}
		f, err := fh.Open()
		if err != nil {
			return nil, http.StatusBadRequest, 40011, "unreadable audio upload"
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, r.opts.MaxAudioBytes+1))
		if err != nil {
			return nil, http.StatusBadRequest, 40011, "unreadable audio upload"
		}
		if int64(len(data)) > r.opts.MaxAudioBytes {
			return nil, http.StatusRequestEntityTooLarge, 41301, "audio too large"
		}
		if len(data) == 0 {
			return nil, http.StatusBadRequest, 40012, "no recording found"
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		return &session.PendingAudio{Data: data, ContentType: contentType}, 0, 0, ""
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nil, http.StatusRequestEntityTooLarge, 41301, "audio too large"
	}
	if s := r.store(ctx, userID); s != nil {
		if pending := s.PendingAudio(); pending != nil && len(pending.Data) > 0 {
			return pending, 0, 0, ""
		}
	}
	return nil, http.StatusBadRequest, 40012, "no recording found"
}

// List returns the user's recordings with short-lived URLs and refreshes
// the cached list.
func (r *RecordingController) List(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var visibility *models.Visibility
	if raw := ctx.Query("visibility"); raw != "" {
		v, err := models.ParseVisibility(raw)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40010, "invalid visibility")
			return
		}
		visibility = &v
	}

	c, cancel := r.callContext(ctx)
	defer cancel()
	rows, err := r.recordings.ListByOwner(c, userID, visibility)
	if err != nil {
		r.fail(ctx, userID, http.StatusInternalServerError, 50011, "Failed to load recordings", err)
		return
	}
	views := make([]models.RecordingView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.View(r.sign(c, row.AudioURL, r.opts.ListURLTTL)))
	}
	if visibility == nil {
		if s := r.store(ctx, userID); s != nil {
			s.SetRecordings(views)
		}
	}
	utils.Success(ctx, gin.H{"items": views})
}

type recordingPatchRequest struct {
	Title      *string         `json:"title"`
	Reflection *string         `json:"reflection"`
	Metrics    *models.Metrics `json:"metrics"`
}

// Update edits title, reflection or metrics of an owned recording.
func (r *RecordingController) Update(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req recordingPatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid request payload")
		return
	}
	var patch models.RecordingPatch
	if req.Title != nil {
		t := utils.Truncate(utils.SanitizeText(*req.Title), maxTitleLength)
		patch.Title = &t
	}
	if req.Reflection != nil {
		t := utils.SanitizeText(*req.Reflection)
		patch.Reflection = &t
	}
	if req.Metrics != nil {
		if err := req.Metrics.Validate(); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40014, err.Error())
			return
		}
		patch.Metrics = req.Metrics
	}
	if patch.Empty() {
		utils.Error(ctx, http.StatusBadRequest, 40015, "nothing to update")
		return
	}

	c, cancel := r.callContext(ctx)
	defer cancel()
	rec, err := r.recordings.Update(c, userID, ctx.Param("id"), patch)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40410, "recording not found")
		return
	}
	if err != nil {
		r.fail(ctx, userID, http.StatusInternalServerError, 50012, "Failed to update recording", err)
		return
	}
	if s := r.store(ctx, userID); s != nil {
		s.PatchRecording(rec.ID, patch)
	}
	if rec.Visibility.Shared() {
		utils.CacheDelete(c, communityCacheKey)
	}
	utils.Success(ctx, gin.H{"recording": rec.View(r.sign(c, rec.AudioURL, r.opts.ListURLTTL))})
}

// Delete removes an owned recording, its feedback and its audio object.
func (r *RecordingController) Delete(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c, cancel := r.callContext(ctx)
	defer cancel()
	rec, err := r.recordings.Delete(c, userID, ctx.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40410, "recording not found")
		return
	}
	if err != nil {
		r.fail(ctx, userID, http.StatusInternalServerError, 50013, "Failed to delete recording", err)
		return
	}
	if err := r.objects.Delete(c, rec.AudioURL); err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger().Warn("delete audio object failed", zap.String("path", rec.AudioURL), zap.Error(err))
	}
	if s := r.store(ctx, userID); s != nil {
		s.RemoveRecording(rec.ID)
		s.AddToast(session.ToastInput{Title: "Recording deleted", Kind: session.KindSuccess})
	}
	if rec.Visibility.Shared() {
		utils.CacheDelete(c, communityCacheKey)
	}
	utils.Success(ctx, gin.H{"id": rec.ID})
}

// Community lists shared recordings with their feedback. Rows are cached
// without URLs; every response signs them afresh.
func (r *RecordingController) Community(ctx *gin.Context) {
	c, cancel := r.callContext(ctx)
	defer cancel()

	var views []models.RecordingView
	if !utils.CacheGetJSON(c, communityCacheKey, &views) {
		rows, err := r.recordings.ListShared(c, communityLimit)
		if err != nil {
			userID, _ := getUserID(ctx)
			r.fail(ctx, userID, http.StatusInternalServerError, 50014, "Failed to load community recordings", err)
			return
		}
		views = make([]models.RecordingView, 0, len(rows))
		for _, row := range rows {
			views = append(views, row.View(nil))
		}
		utils.CacheSetJSON(c, communityCacheKey, views, communityCacheTTL)
	}
	for i := range views {
		views[i].AudioURL = r.sign(c, views[i].AudioPath, r.opts.ListURLTTL)
	}
	utils.Success(ctx, gin.H{"items": views})
}

// sign returns nil when no URL can be issued; the row is still listed.
func (r *RecordingController) sign(c context.Context, objectPath string, ttl time.Duration) *string {
	if objectPath == "" {
		return nil
	}
	u, err := r.objects.SignedURL(c, objectPath, ttl)
	if err != nil {
		r.logger().Warn("sign audio url failed", zap.String("path", objectPath), zap.Error(err))
		return nil
	}
	return &u
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
