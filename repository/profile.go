package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/voicebloom/models"
)

type GormProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

func (r *GormProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	return conflict(r.db.WithContext(ctx).Create(p).Error)
}

func (r *GormProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormProfileRepository) GetByProvider(ctx context.Context, provider, providerID string) (*models.Profile, error) {
	return r.first(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (r *GormProfileRepository) first(ctx context.Context, query string, args ...interface{}) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where(query, args...).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *GormProfileRepository) UpdateUsername(ctx context.Context, id, username string) error {
	return r.update(ctx, id, "username", username)
}

func (r *GormProfileRepository) UpdateLocation(ctx context.Context, id, location string) error {
	return r.update(ctx, id, "location", location)
}

func (r *GormProfileRepository) UpdateEmail(ctx context.Context, id, email string) error {
	return conflict(r.update(ctx, id, "email", email))
}

func (r *GormProfileRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, "password_hash", hash)
}

func (r *GormProfileRepository) update(ctx context.Context, id, column string, value interface{}) error {
	return affected(r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", id).
		Update(column, value))
}
