// Package services – ProfileResolver
//
// This file implements profile resolution for callback processing: a
// cache-first lookup with source-of-truth fallback and opportunistic cache
// repair. Callbacks may carry a hint id alongside the payload's profile id
// when the payload id is suspected stale; the hint is tried first and wins
// when it resolves, with a logged (never raised) warning on disagreement.
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

// ProfileSource defines the source-of-truth contract required by the resolver.
type ProfileSource interface {
	// GetProfile fetches a profile by id, returning repo.ErrNotFound when absent.
	GetProfile(ctx context.Context, db *gorm.DB, id int64) (*domain.Profile, error)
}

// ProfileCache defines the cache contract required by the resolver.
type ProfileCache interface {
	// Profile returns the cached profile or kv.ErrNotFound.
	Profile(ctx context.Context, id int64) (*domain.Profile, error)
	// SetProfile writes a profile back to the cache.
	SetProfile(ctx context.Context, p *domain.Profile) error
}

// ProfileResolver resolves profiles cache-first with source fallback.
type ProfileResolver struct {
	DB     *gorm.DB
	Source ProfileSource
	Cache  ProfileCache
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(db *gorm.DB, src ProfileSource, c ProfileCache) *ProfileResolver {
	return &ProfileResolver{DB: db, Source: src, Cache: c}
}

// Resolve returns the profile for id, honoring an optional hint id.
//
// When hint is non-zero and differs from id, the hint is resolved first and,
// if found, wins: the hint is the corrected identifier and the payload id is
// treated as stale (a mismatch warning is logged). When the hint is absent
// from both cache and source, resolution falls back to id. ErrProfileNotFound
// is returned only when every candidate id fails.
func (r *ProfileResolver) Resolve(ctx context.Context, id, hint int64) (*domain.Profile, error) {
	if hint != 0 && hint != id {
		p, err := r.lookup(ctx, hint)
		if err == nil {
			log.Warn().
				Int64("profile_id", id).
				Int64("hint_id", hint).
				Msg("callback profile id disagrees with hint; using hint")
			return p, nil
		}
		if !errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
	}
	return r.lookup(ctx, id)
}

// lookup is the cache-then-source resolution for one id. A source hit
// triggers a cache write-back so subsequent resolutions are fast; write-back
// failures are logged, not surfaced.
func (r *ProfileResolver) lookup(ctx context.Context, id int64) (*domain.Profile, error) {
	p, err := r.Cache.Profile(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	p, err = r.Source.GetProfile(ctx, r.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	if cerr := r.Cache.SetProfile(ctx, p); cerr != nil {
		log.Warn().Int64("profile_id", id).Err(cerr).Msg("profile cache write-back failed")
	}
	return p, nil
}
