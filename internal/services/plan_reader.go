// Package services – PlanReader
//
// This file serves reads of the latest persisted plan per profile: cache
// first, source-of-truth fallback with opportunistic write-back, the same
// shape as profile resolution. The internal plan endpoint uses it so operator
// tooling and the bot frontend read what the finalizers delivered without
// touching the generation path.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/repo"
)

// PlanSource is the source-of-truth contract required by the reader.
type PlanSource interface {
	LatestProgram(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Program, error)
	LatestSubscription(ctx context.Context, db *gorm.DB, profileID int64) (*domain.Subscription, error)
}

// PlanCache is the cache contract required by the reader.
type PlanCache interface {
	Program(ctx context.Context, profileID int64) (*domain.Program, error)
	SetProgram(ctx context.Context, p *domain.Program) error
	Subscription(ctx context.Context, profileID int64) (*domain.Subscription, error)
	SetSubscription(ctx context.Context, s *domain.Subscription) error
}

// PlanReader resolves the latest plan of each type for a profile.
type PlanReader struct {
	DB     *gorm.DB
	Source PlanSource
	Cache  PlanCache
}

// NewPlanReader constructs a PlanReader.
func NewPlanReader(db *gorm.DB, src PlanSource, c PlanCache) *PlanReader {
	return &PlanReader{DB: db, Source: src, Cache: c}
}

// Program returns the newest training program for profileID, or
// ErrPlanNotFound when none was ever persisted.
func (r *PlanReader) Program(ctx context.Context, profileID int64) (*domain.Program, error) {
	p, err := r.Cache.Program(ctx, profileID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	p, err = r.Source.LatestProgram(ctx, r.DB, profileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if cerr := r.Cache.SetProgram(ctx, p); cerr != nil {
		log.Warn().Int64("profile_id", profileID).Err(cerr).Msg("program cache write-back failed")
	}
	return p, nil
}

// Subscription returns the newest subscription for profileID, or
// ErrPlanNotFound when none was ever persisted.
func (r *PlanReader) Subscription(ctx context.Context, profileID int64) (*domain.Subscription, error) {
	s, err := r.Cache.Subscription(ctx, profileID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	s, err = r.Source.LatestSubscription(ctx, r.DB, profileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if cerr := r.Cache.SetSubscription(ctx, s); cerr != nil {
		log.Warn().Int64("profile_id", profileID).Err(cerr).Msg("subscription cache write-back failed")
	}
	return s, nil
}
