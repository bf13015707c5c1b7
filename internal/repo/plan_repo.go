// Package repo implements the source-of-truth persistence layer for domain
// entities, backed by GORM. This file provides repository helpers for the
// generated plan artifacts (programs and subscriptions).
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/domain"
)

// CreateProgram inserts a new program row and fills in the assigned id.
func CreateProgram(ctx context.Context, db *gorm.DB, p *domain.Program) error {
	return db.WithContext(ctx).Create(p).Error
}

// LatestProgram returns the most recently created program for a profile,
// or ErrNotFound.
func LatestProgram(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Program, error) {
	var p domain.Program
	err := db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC, id DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateSubscription inserts a new subscription row and fills in the assigned id.
func CreateSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSubscription fetches a subscription by id, returning ErrNotFound when absent.
func GetSubscription(ctx context.Context, db *gorm.DB, id int64) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSubscription returns the most recently created subscription for a
// profile, or ErrNotFound.
func LatestSubscription(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC, id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSubscription fully replaces an existing subscription row.
func SaveSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Save(s).Error
}

// DeactivateSubscription flips the enabled flag off for a superseded
// subscription. Deactivating an unknown id returns ErrNotFound.
func DeactivateSubscription(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Update("enabled", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
