package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/voicebloom/prompts"
	"github.com/cppla/voicebloom/utils"
)

// PromptController serves the daily prompt.
type PromptController struct {
	Backend
	catalog *prompts.Catalog
	loc     *time.Location
}

// NewPromptController creates a new PromptController instance.
func NewPromptController(b Backend, catalog *prompts.Catalog, loc *time.Location) *PromptController {
	if loc == nil {
		loc = time.Local
	}
	return &PromptController{Backend: b, catalog: catalog, loc: loc}
}

// Daily returns today's prompt; it changes at local midnight.
func (p *PromptController) Daily(ctx *gin.Context) {
	utils.Success(ctx, p.catalog.For(p.now().In(p.loc)))
}
