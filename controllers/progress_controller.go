package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/voicebloom/activity"
	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

const (
	defaultActivityDays = 30
	maxActivityDays     = 366
)

// ProgressController derives streaks, heat-maps and charts from the
// user's recordings.
type ProgressController struct {
	Backend
	recordings repository.RecordingRepository
	loc        *time.Location
}

// NewProgressController creates a new ProgressController instance. Calendar
// days are taken in loc.
func NewProgressController(b Backend, recordings repository.RecordingRepository, loc *time.Location) *ProgressController {
	if loc == nil {
		loc = time.Local
	}
	return &ProgressController{Backend: b, recordings: recordings, loc: loc}
}

func (p *ProgressController) load(ctx *gin.Context) (string, []models.Recording, bool) {
	userID, ok := requireUser(ctx)
	if !ok {
		return "", nil, false
	}
	c, cancel := p.callContext(ctx)
	defer cancel()
	rows, err := p.recordings.ListByOwner(c, userID, nil)
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50040, "Failed to load progress", err)
		return "", nil, false
	}
	return userID, rows, true
}

// Streak returns the current streak of consecutive recording days.
func (p *ProgressController) Streak(ctx *gin.Context) {
	userID, rows, ok := p.load(ctx)
	if !ok {
		return
	}
	streak, err := activity.CurrentStreak(activity.RecordsOf(rows), p.now().In(p.loc))
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50041, "Failed to compute streak", err)
		return
	}
	utils.Success(ctx, gin.H{"streak": streak})
}

type activityDay struct {
	activity.DayBucket
	Intensity int `json:"intensity"`
}

// Activity returns one bucket per day of the trailing window (?days=, 30 by default).
func (p *ProgressController) Activity(ctx *gin.Context) {
	days := defaultActivityDays
	if raw := ctx.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityDays {
			utils.Error(ctx, http.StatusBadRequest, 40040, "days must be between 1 and 366")
			return
		}
		days = n
	}
	userID, rows, ok := p.load(ctx)
	if !ok {
		return
	}
	buckets, err := activity.Histogram(activity.RecordsOf(rows), days, p.now().In(p.loc))
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50042, "Failed to build activity", err)
		return
	}
	peak := activity.MaxCount(buckets)
	items := make([]activityDay, len(buckets))
	for i, b := range buckets {
		items[i] = activityDay{DayBucket: b, Intensity: activity.Intensity(b.Count, peak)}
	}
	utils.Success(ctx, gin.H{"days": days, "max": peak, "items": items})
}

// Chart returns the rated recordings as chart points with their averages.
func (p *ProgressController) Chart(ctx *gin.Context) {
	_, rows, ok := p.load(ctx)
	if !ok {
		return
	}
	points := activity.Progress(rows, p.loc)
	utils.Success(ctx, gin.H{"points": points, "averages": activity.Averages(points)})
}

// Stats summarizes the profile page.
func (p *ProgressController) Stats(ctx *gin.Context) {
	userID, rows, ok := p.load(ctx)
	if !ok {
		return
	}
	records := activity.RecordsOf(rows)
	current, err := activity.CurrentStreak(records, p.now().In(p.loc))
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50041, "Failed to compute streak", err)
		return
	}
	longest, err := activity.LongestStreak(records, p.loc)
	if err != nil {
		p.fail(ctx, userID, http.StatusInternalServerError, 50041, "Failed to compute streak", err)
		return
	}
	shared := 0
	for _, r := range rows {
		if r.Visibility.Shared() {
			shared++
		}
	}
	points := activity.Progress(rows, p.loc)
	utils.Success(ctx, gin.H{
		"total_recordings":   len(rows),
		"public_recordings":  shared,
		"private_recordings": len(rows) - shared,
		"current_streak":     current,
		"longest_streak":     longest,
		"averages":           activity.Averages(points),
		"achievements":       activity.Achievements(len(rows), shared),
	})
}
