package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"gorm.io/gorm"
)

type PreferenceRepository interface {
	// GetOrCreate returns the user's preference row, creating it with
	// defaults on first access.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
	Update(ctx context.Context, pref *model.NotificationPreference) error
	// AddToken registers a push token, deduplicating per user.
	AddToken(ctx context.Context, userID uuid.UUID, token string) error
	// RemoveToken is idempotent; removing an absent token is a no-op.
	RemoveToken(ctx context.Context, userID uuid.UUID, token string) error
	TokensByUser(ctx context.Context, userID uuid.UUID) ([]model.PushToken, error)
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference
	err := r.db.WithContext(ctx).First(&pref, "user_id = ?", userID).Error
	if err == nil {
		return &pref, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	pref = model.DefaultPreference(userID)
	if err := r.db.WithContext(ctx).Create(&pref).Error; err != nil {
		// Lost a create race with another request; the row exists now.
		var existing model.NotificationPreference
		if ferr := r.db.WithContext(ctx).First(&existing, "user_id = ?", userID).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) Update(ctx context.Context, pref *model.NotificationPreference) error {
	return r.db.WithContext(ctx).Save(pref).Error
}

func (r *preferenceRepository) AddToken(ctx context.Context, userID uuid.UUID, token string) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PushToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&model.PushToken{UserID: userID, Token: token}).Error
}

func (r *preferenceRepository) RemoveToken(ctx context.Context, userID uuid.UUID, token string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&model.PushToken{}).Error
}

func (r *preferenceRepository) TokensByUser(ctx context.Context, userID uuid.UUID) ([]model.PushToken, error) {
	var tokens []model.PushToken
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&tokens).Error
	return tokens, err
}
