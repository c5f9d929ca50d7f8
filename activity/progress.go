package activity

import (
	"sort"
	"time"

	"github.com/cppla/voicebloom/models"
)

// ProgressPoint is one rated recording on the progress chart.
type ProgressPoint struct {
	Date       string  `json:"date"`
	Tone       float64 `json:"tone"`
	Confidence float64 `json:"confidence"`
	Fluency    float64 `json:"fluency"`
}

// Progress returns the rated recordings as chart points, oldest first.
func Progress(recordings []models.Recording, loc *time.Location) []ProgressPoint {
	points := make([]ProgressPoint, 0, len(recordings))
	for _, r := range recordings {
		m := r.Metrics()
		if m == nil {
			continue
		}
		points = append(points, ProgressPoint{
			Date:       KeyOf(r.CreatedAt, loc),
			Tone:       m.Tone,
			Confidence: m.Confidence,
			Fluency:    m.Fluency,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// Averages returns the mean of each metric, or nil when nothing was rated.
func Averages(points []ProgressPoint) *models.Metrics {
	if len(points) == 0 {
		return nil
	}
	var sum models.Metrics
	for _, p := range points {
		sum.Tone += p.Tone
		sum.Confidence += p.Confidence
		sum.Fluency += p.Fluency
	}
	n := float64(len(points))
	return &models.Metrics{Tone: sum.Tone / n, Confidence: sum.Confidence / n, Fluency: sum.Fluency / n}
}

// Achievement is an unlocked profile badge.
type Achievement struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Achievements lists the badges earned for the given recording counts.
func Achievements(total, shared int) []Achievement {
	var out []Achievement
	if total >= 1 {
		out = append(out, Achievement{Key: "first_recording", Title: "First Recording", Description: "Made your first voice recording"})
	}
	if shared >= 1 {
		out = append(out, Achievement{Key: "community_contributor", Title: "Community Contributor", Description: "Shared a recording with the community"})
	}
	if total >= 5 {
		out = append(out, Achievement{Key: "practice_makes_perfect", Title: "Practice Makes Perfect", Description: "Completed 5+ recordings"})
	}
	return out
}
