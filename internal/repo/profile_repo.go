// Package repo implements the source-of-truth persistence layer for domain
// entities, backed by GORM. This file provides repository helpers for the
// Profile model.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/domain"
)

// GetProfile fetches a profile by id, returning ErrNotFound when absent.
func GetProfile(ctx context.Context, db *gorm.DB, id int64) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile inserts or fully replaces a profile row.
func SaveProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	return db.WithContext(ctx).Save(p).Error
}

// UpdateProfile applies a partial update to the profile with the given id.
func UpdateProfile(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
