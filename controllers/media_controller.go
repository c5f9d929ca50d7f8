package controllers

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/utils"
)

// MediaController serves objects of the local store through signed URLs.
type MediaController struct {
	local *storage.LocalStore
}

// NewMediaController creates a new MediaController instance.
func NewMediaController(local *storage.LocalStore) *MediaController {
	return &MediaController{local: local}
}

// Serve streams an object after checking its signature and expiry.
func (m *MediaController) Serve(ctx *gin.Context) {
	objectPath := strings.TrimPrefix(ctx.Param("path"), "/")
	full, err := m.local.Verify(objectPath, ctx.Query("expires"), ctx.Query("sig"))
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid media path")
		return
	case err != nil:
		utils.Error(ctx, http.StatusForbidden, 40360, "invalid or expired signature")
		return
	}
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		utils.Error(ctx, http.StatusNotFound, 40460, "media not found")
		return
	}
	ctx.Header("Content-Type", storage.ContentTypeFor(objectPath))
	ctx.Header("Cache-Control", "private, max-age=60")
	ctx.File(full)
}
