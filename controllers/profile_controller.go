package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

const (
	maxUsernameLength = 64
	maxLocationLength = 128
)

// ProfileController serves the profile settings page.
type ProfileController struct {
	Backend
	profiles repository.ProfileRepository
}

// NewProfileController creates a new ProfileController instance.
func NewProfileController(b Backend, profiles repository.ProfileRepository) *ProfileController {
	return &ProfileController{Backend: b, profiles: profiles}
}

// Get returns the caller's profile.
func (p *ProfileController) Get(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c, cancel := p.callContext(ctx)
	defer cancel()
	profile, err := p.profiles.GetByID(c, userID)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50030, "Failed to load profile", err)
		return
	}
	utils.Success(ctx, gin.H{"profile": profile})
}

// UpdateUsername renames the caller.
func (p *ProfileController) UpdateUsername(ctx *gin.Context) {
	p.updateField(ctx, "username", maxUsernameLength, true, p.profiles.UpdateUsername, "Username updated")
}

// UpdateLocation sets or clears the caller's location.
func (p *ProfileController) UpdateLocation(ctx *gin.Context) {
	p.updateField(ctx, "location", maxLocationLength, false, p.profiles.UpdateLocation, "Location updated")
}

func (p *ProfileController) updateField(ctx *gin.Context, field string, limit int, required bool,
	update func(c context.Context, id, value string) error, toast string) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req map[string]string
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	value := utils.SanitizeText(req[field])
	if required && value == "" {
		utils.Error(ctx, http.StatusBadRequest, 40051, field+" cannot be empty")
		return
	}
	if len([]rune(value)) > limit {
		utils.Error(ctx, http.StatusBadRequest, 40052, field+" is too long")
		return
	}

	c, cancel := p.callContext(ctx)
	defer cancel()
	err := update(c, userID, value)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	if errors.Is(err, repository.ErrConflict) {
		utils.Error(ctx, http.StatusConflict, 40902, field+" already taken")
		return
	}
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50031, "Failed to update profile", err)
		return
	}
	p.toastSuccess(ctx, userID, toast, "")
	utils.Success(ctx, gin.H{field: value})
}
