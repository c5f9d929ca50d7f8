package models

import (
	"fmt"
	"strings"
	"time"
)

// Visibility is the sharing scope of a recording.
type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityPublic    Visibility = "public"
	VisibilityAnonymous Visibility = "anonymous"
)

// ParseVisibility validates a raw visibility value coming from a request or a row.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case VisibilityPrivate, VisibilityPublic, VisibilityAnonymous:
		return v, nil
	default:
		return "", fmt.Errorf("invalid visibility %q", s)
	}
}

// Shared reports whether other users may see the recording.
func (v Visibility) Shared() bool {
	return v == VisibilityPublic || v == VisibilityAnonymous
}

// Metrics are the self-assessed ratings of a recording, each on a 0-10 scale.
type Metrics struct {
	Tone       float64 `json:"tone"`
	Confidence float64 `json:"confidence"`
	Fluency    float64 `json:"fluency"`
}

// Validate rejects ratings outside the 0-10 scale.
func (m Metrics) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{{"tone", m.Tone}, {"confidence", m.Confidence}, {"fluency", m.Fluency}}
	for _, c := range checks {
		if c.value < 0 || c.value > 10 {
			return fmt.Errorf("%s must be between 0 and 10", c.name)
		}
	}
	return nil
}

// Recording is one saved voice clip. AudioURL holds the object storage path,
// never a public URL; signed URLs are issued per request.
type Recording struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"index;size:36;not null" json:"user_id"`
	AudioURL         string     `gorm:"column:audio_url;size:1024;not null" json:"audio_url"`
	Visibility       Visibility `gorm:"size:16;index;not null;default:'private'" json:"visibility"`
	Prompt           string     `gorm:"type:text" json:"prompt"`
	Title            string     `gorm:"size:255" json:"title"`
	Reflection       string     `gorm:"type:text" json:"reflection,omitempty"`
	MetricTone       *float64   `gorm:"column:metric_tone" json:"-"`
	MetricConfidence *float64   `gorm:"column:metric_confidence" json:"-"`
	MetricFluency    *float64   `gorm:"column:metric_fluency" json:"-"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	Author           *Profile   `gorm:"foreignKey:UserID;references:ID" json:"-"`
	Feedbacks        []Feedback `gorm:"foreignKey:RecordingID" json:"-"`
}

// TableName pins the table name used by the client contract.
func (Recording) TableName() string { return "recordings" }

// Metrics returns the ratings when all three were recorded.
func (r Recording) Metrics() *Metrics {
	if r.MetricTone == nil || r.MetricConfidence == nil || r.MetricFluency == nil {
		return nil
	}
	return &Metrics{Tone: *r.MetricTone, Confidence: *r.MetricConfidence, Fluency: *r.MetricFluency}
}

// SetMetrics stores m into the column fields; nil clears them.
func (r *Recording) SetMetrics(m *Metrics) {
	if m == nil {
		r.MetricTone, r.MetricConfidence, r.MetricFluency = nil, nil, nil
		return
	}
	tone, conf, flu := m.Tone, m.Confidence, m.Fluency
	r.MetricTone, r.MetricConfidence, r.MetricFluency = &tone, &conf, &flu
}

// ActivityTimestamp feeds the streak and histogram calculations.
func (r Recording) ActivityTimestamp() string {
	return r.CreatedAt.Format(time.RFC3339Nano)
}

// RecordingPatch carries the owner-editable fields; nil fields are left untouched.
type RecordingPatch struct {
	Title      *string  `json:"title,omitempty"`
	Reflection *string  `json:"reflection,omitempty"`
	Metrics    *Metrics `json:"metrics,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RecordingPatch) Empty() bool {
	return p.Title == nil && p.Reflection == nil && p.Metrics == nil
}

// Apply merges the patch into r.
func (p RecordingPatch) Apply(r *Recording) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Reflection != nil {
		r.Reflection = *p.Reflection
	}
	if p.Metrics != nil {
		r.SetMetrics(p.Metrics)
	}
}

// ApplyView merges the patch into an already rendered recording.
func (p RecordingPatch) ApplyView(v *RecordingView) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Reflection != nil {
		v.Reflection = *p.Reflection
	}
	if p.Metrics != nil {
		m := *p.Metrics
		v.Metrics = &m
	}
}

// RecordingView is the API shape of a recording: typed metrics, a short-lived
// signed URL and, for shared recordings, the author and feedback.
type RecordingView struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id,omitempty"`
	Username   string     `json:"username,omitempty"`
	AudioPath  string     `json:"audio_path"`
	AudioURL   *string    `json:"audio_url"`
	Visibility Visibility `json:"visibility"`
	Prompt     string     `json:"prompt"`
	Title      string     `json:"title"`
	Reflection string     `json:"reflection,omitempty"`
	Metrics    *Metrics   `json:"metrics,omitempty"`
	Feedback   []Feedback `json:"feedback,omitempty"`
	Date       time.Time  `json:"date"`
}

// AnonymousName is shown in place of the author of anonymous recordings.
const AnonymousName = "Anonymous"

// View converts a row into its API shape. Anonymous recordings never expose the author.
func (r Recording) View(signedURL *string) RecordingView {
	v := RecordingView{
		ID:         r.ID,
		UserID:     r.UserID,
		AudioPath:  r.AudioURL,
		AudioURL:   signedURL,
		Visibility: r.Visibility,
		Prompt:     r.Prompt,
		Title:      r.Title,
		Reflection: r.Reflection,
		Metrics:    r.Metrics(),
		Feedback:   r.Feedbacks,
		Date:       r.CreatedAt,
	}
	switch {
	case r.Visibility == VisibilityAnonymous:
		v.UserID = ""
		v.Username = AnonymousName
	case r.Author != nil && r.Author.Username != "":
		v.Username = r.Author.Username
	default:
		v.Username = AnonymousName
	}
	return v
}
