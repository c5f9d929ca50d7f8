package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

const maxCommentLength = 2000

// FeedbackController manages community feedback on shared recordings.
type FeedbackController struct {
	Backend
	recordings repository.RecordingRepository
	feedbacks  repository.FeedbackRepository
}

// NewFeedbackController creates a new FeedbackController instance.
func NewFeedbackController(b Backend, recordings repository.RecordingRepository, feedbacks repository.FeedbackRepository) *FeedbackController {
	return &FeedbackController{Backend: b, recordings: recordings, feedbacks: feedbacks}
}

// visible loads a recording the caller may see: shared ones, or their own.
func (f *FeedbackController) visible(ctx *gin.Context, userID, id string) (*models.Recording, bool) {
	c, cancel := f.callContext(ctx)
	defer cancel()
	rec, err := f.recordings.Get(c, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !rec.Visibility.Shared() && rec.UserID != userID) {
		utils.Error(ctx, http.StatusNotFound, 40410, "recording not found")
		return nil, false
	}
	if err != nil {
		f.fail(ctx, userID, http.StatusInternalServerError, 50020, "Failed to load recording", err)
		return nil, false
	}
	return rec, true
}

// List returns the feedback of a recording, oldest first.
func (f *FeedbackController) List(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	rec, ok := f.visible(ctx, userID, ctx.Param("id"))
	if !ok {
		return
	}
	c, cancel := f.callContext(ctx)
	defer cancel()
	items, err := f.feedbacks.ListByRecording(c, rec.ID)
	if err != nil {
		f.fail(ctx, userID, http.StatusInternalServerError, 50021, "Failed to load feedback", err)
		return
	}
	if items == nil {
		items = []models.Feedback{}
	}
	utils.Success(ctx, gin.H{"items": items})
}

// Create adds feedback to a shared recording.
func (f *FeedbackController) Create(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Comment     string `json:"comment"`
		CommentType string `json:"comment_type"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	comment := utils.Truncate(utils.SanitizeText(req.Comment), maxCommentLength)
	if comment == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "comment cannot be empty")
		return
	}
	commentType, err := models.ParseCommentType(req.CommentType)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid comment type")
		return
	}

	rec, ok := f.visible(ctx, userID, ctx.Param("id"))
	if !ok {
		return
	}
	if !rec.Visibility.Shared() {
		utils.Error(ctx, http.StatusForbidden, 40320, "feedback is only open on shared recordings")
		return
	}

	c, cancel := f.callContext(ctx)
	defer cancel()
	fb := &models.Feedback{
		ID:          uuid.NewString(),
		RecordingID: rec.ID,
		UserID:      &userID,
		CommentType: commentType,
		Comment:     comment,
		CreatedAt:   f.now().UTC(),
	}
	if err := f.feedbacks.Create(c, fb); err != nil {
		f.fail(ctx, userID, http.StatusInternalServerError, 50022, "Failed to submit feedback", err)
		return
	}
	utils.CacheDelete(c, communityCacheKey)
	f.toastSuccess(ctx, userID, "Feedback submitted", "Thanks for supporting the community.")
	utils.Created(ctx, gin.H{"feedback": fb})
}

// Delete removes feedback written by the caller.
func (f *FeedbackController) Delete(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c, cancel := f.callContext(ctx)
	defer cancel()
	err := f.feedbacks.Delete(c, userID, ctx.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40420, "feedback not found")
		return
	}
	if err != nil {
		f.fail(ctx, userID, http.StatusInternalServerError, 50023, "Failed to delete feedback", err)
		return
	}
	utils.CacheDelete(c, communityCacheKey)
	utils.Success(ctx, gin.H{"id": ctx.Param("id")})
}
