package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/voicebloom/models"
)

type GormFeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: db}
}

// Create inserts feedback; an empty comment type is stored as general.
func (r *GormFeedbackRepository) Create(ctx context.Context, f *models.Feedback) error {
	ct, err := models.ParseCommentType(string(f.CommentType))
	if err != nil {
		return err
	}
	f.CommentType = ct
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *GormFeedbackRepository) ListByRecording(ctx context.Context, recordingID string) ([]models.Feedback, error) {
	var out []models.Feedback
	err := r.db.WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes feedback written by userID.
func (r *GormFeedbackRepository) Delete(ctx context.Context, userID, id string) error {
	return affected(r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Feedback{}))
}
