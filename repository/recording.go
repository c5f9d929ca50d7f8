package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/voicebloom/models"
)

const defaultSharedLimit = 100

type GormRecordingRepository struct {
	db *gorm.DB
}

func NewRecordingRepository(db *gorm.DB) *GormRecordingRepository {
	return &GormRecordingRepository{db: db}
}

func (r *GormRecordingRepository) Create(ctx context.Context, rec *models.Recording) error {
	if _, err := models.ParseVisibility(string(rec.Visibility)); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *GormRecordingRepository) Get(ctx context.Context, id string) (*models.Recording, error) {
	var rec models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *GormRecordingRepository) ListByOwner(ctx context.Context, userID string, visibility *models.Visibility) ([]models.Recording, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if visibility != nil {
		q = q.Where("visibility = ?", *visibility)
	}
	var out []models.Recording
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRecordingRepository) ListShared(ctx context.Context, limit int) ([]models.Recording, error) {
	if limit <= 0 {
		limit = defaultSharedLimit
	}
	var out []models.Recording
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Feedbacks", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("visibility IN ?", []models.Visibility{models.VisibilityPublic, models.VisibilityAnonymous}).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRecordingRepository) Update(ctx context.Context, userID, id string, patch models.RecordingPatch) (*models.Recording, error) {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Reflection != nil {
		updates["reflection"] = *patch.Reflection
	}
	if patch.Metrics != nil {
		if err := patch.Metrics.Validate(); err != nil {
			return nil, err
		}
		updates["metric_tone"] = patch.Metrics.Tone
		updates["metric_confidence"] = patch.Metrics.Confidence
		updates["metric_fluency"] = patch.Metrics.Fluency
	}
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Recording{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update recording: %w", res.Error)
		}
	}
	var rec models.Recording
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *GormRecordingRepository) Delete(ctx context.Context, userID, id string) (*models.Recording, error) {
	var rec models.Recording
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&rec).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("recording_id = ?", id).Delete(&models.Feedback{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Recording{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormRecordingRepository) UpdateAudioPath(ctx context.Context, oldPath, newPath string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Recording{}).
		Where("audio_url = ?", oldPath).
		Update("audio_url", newPath)
	return res.RowsAffected, res.Error
}

func (r *GormRecordingRepository) ListByAudioSuffix(ctx context.Context, suffix string, limit int) ([]models.Recording, error) {
	q := r.db.WithContext(ctx).Where("audio_url LIKE ?", "%"+suffix).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Recording
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
