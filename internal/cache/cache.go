// Package cache holds denormalized JSON copies of source-of-truth entities in
// the shared key-value store. Reads that miss fall back to the repository
// layer at the caller's discretion; writes here never replace the system of
// record. Corrupt entries are evicted on read instead of surfacing as errors
// so the next resolution repairs the cache from source.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fitpilot/go-coach-backend/internal/domain"
	"github.com/fitpilot/go-coach-backend/internal/kv"
)

// Cache provides typed access to the entity cache keys.
type Cache struct {
	store kv.Store
	ttl   time.Duration
}

// New builds a Cache whose entries expire after ttl (zero disables expiry).
func New(store kv.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func profileKey(id int64) string             { return fmt.Sprintf("profile:%d", id) }
func programKey(profileID int64) string      { return fmt.Sprintf("program:%d", profileID) }
func subscriptionKey(profileID int64) string { return fmt.Sprintf("subscription:%d", profileID) }

// Profile returns the cached profile or kv.ErrNotFound.
func (c *Cache) Profile(ctx context.Context, id int64) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.getJSON(ctx, profileKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetProfile writes the profile through to the cache.
func (c *Cache) SetProfile(ctx context.Context, p *domain.Profile) error {
	return c.setJSON(ctx, profileKey(p.ID), p)
}

// Program returns the latest cached program for a profile or kv.ErrNotFound.
func (c *Cache) Program(ctx context.Context, profileID int64) (*domain.Program, error) {
	var p domain.Program
	if err := c.getJSON(ctx, programKey(profileID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetProgram mirrors a persisted program into the cache.
func (c *Cache) SetProgram(ctx context.Context, p *domain.Program) error {
	return c.setJSON(ctx, programKey(p.ProfileID), p)
}

// Subscription returns the latest cached subscription for a profile or
// kv.ErrNotFound.
func (c *Cache) Subscription(ctx context.Context, profileID int64) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := c.getJSON(ctx, subscriptionKey(profileID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSubscription mirrors a persisted subscription into the cache.
func (c *Cache) SetSubscription(ctx context.Context, s *domain.Subscription) error {
	return c.setJSON(ctx, subscriptionKey(s.ProfileID), s)
}

// getJSON loads and decodes one entry. A payload that fails to decode is
// evicted and reported as a miss, never as an error.
func (c *Cache) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("evicting corrupt cache entry")
		_ = c.store.Del(ctx, key)
		return kv.ErrNotFound
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, src any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, b, c.ttl)
}
