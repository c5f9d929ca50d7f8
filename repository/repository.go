// Package repository is the relational store collaborator: typed access to
// the recordings, feedbacks and profiles tables through gorm.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/voicebloom/models"
)

// ErrNotFound is returned when a row does not exist or is not visible to the caller.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a unique column already holds the value.
var ErrConflict = errors.New("record already exists")

// RecordingRepository stores recordings. Mutations are scoped to the owner.
type RecordingRepository interface {
	Create(ctx context.Context, r *models.Recording) error
	Get(ctx context.Context, id string) (*models.Recording, error)
	// ListByOwner returns the owner's recordings, newest first; a nil
	// visibility lists all of them.
	ListByOwner(ctx context.Context, userID string, visibility *models.Visibility) ([]models.Recording, error)
	// ListShared returns public and anonymous recordings, newest first, with
	// author profile and feedback loaded.
	ListShared(ctx context.Context, limit int) ([]models.Recording, error)
	Update(ctx context.Context, userID, id string, patch models.RecordingPatch) (*models.Recording, error)
	Delete(ctx context.Context, userID, id string) (*models.Recording, error)
	UpdateAudioPath(ctx context.Context, oldPath, newPath string) (int64, error)
	ListByAudioSuffix(ctx context.Context, suffix string, limit int) ([]models.Recording, error)
}

// FeedbackRepository stores community feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, f *models.Feedback) error
	ListByRecording(ctx context.Context, recordingID string) ([]models.Feedback, error)
	Delete(ctx context.Context, userID, id string) error
}

// ProfileRepository stores accounts.
type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*models.Profile, error)
	UpdateUsername(ctx context.Context, id, username string) error
	UpdateLocation(ctx context.Context, id, location string) error
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePassword(ctx context.Context, id, hash string) error
}

// Models lists every table for auto migration.
func Models() []interface{} {
	return []interface{}{&models.Profile{}, &models.Recording{}, &models.Feedback{}}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func conflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// affected turns an update that touched no row into ErrNotFound.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
