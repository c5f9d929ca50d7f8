package models

import (
	"fmt"
	"strings"
	"time"
)

// CommentType classifies community feedback.
type CommentType string

const (
	CommentGeneral       CommentType = "general"
	CommentEncouragement CommentType = "encouragement"
	CommentTips          CommentType = "tips"
)

// ParseCommentType validates a comment type; empty input defaults to general.
func ParseCommentType(s string) (CommentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CommentGeneral, nil
	}
	switch ct := CommentType(s); ct {
	case CommentGeneral, CommentEncouragement, CommentTips:
		return ct, nil
	default:
		return "", fmt.Errorf("invalid comment type %q", s)
	}
}

// Feedback is a comment left on a shared recording.
type Feedback struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	RecordingID string      `gorm:"index;size:36;not null" json:"recording_id"`
	UserID      *string     `gorm:"index;size:36" json:"user_id"`
	CommentType CommentType `gorm:"size:16;not null;default:'general'" json:"comment_type"`
	Comment     string      `gorm:"type:text;not null" json:"comment"`
	Flagged     bool        `gorm:"not null;default:false" json:"flagged"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (Feedback) TableName() string { return "feedbacks" }
