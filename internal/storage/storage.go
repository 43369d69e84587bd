// Package storage holds the small amount of client-side state that lives
// outside the reconciliation engine: one UI preference and a warm cache of
// the latest raw snapshot per campaign. Derived views are never persisted;
// they are always recomputed from snapshots.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

const (
	useMapKey         = "prefs:use_map"
	snapshotKeyFormat = "campaign:%d:snapshot"
	snapshotTTL       = 24 * time.Hour
)

// Store is a Redis-backed preference and snapshot store.
type Store struct {
	rdb *redis.Client
}

// New creates a store on an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// UseMap returns the map-view preference. The preference is read once at
// initialization; a missing key defaults to false.
func (s *Store) UseMap(ctx context.Context) (bool, error) {
	val, err := s.rdb.Get(ctx, useMapKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading use_map preference: %w", err)
	}
	return val == "1" || val == "true", nil
}

// SetUseMap stores the map-view preference.
func (s *Store) SetUseMap(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.rdb.Set(ctx, useMapKey, val, 0).Err(); err != nil {
		return fmt.Errorf("writing use_map preference: %w", err)
	}
	return nil
}

// CacheSnapshot stores the latest raw snapshot for a campaign.
func (s *Store) CacheSnapshot(ctx context.Context, c *domain.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	key := fmt.Sprintf(snapshotKeyFormat, c.ID)
	if err := s.rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("caching snapshot: %w", err)
	}
	return nil
}

// CachedSnapshot returns the cached snapshot for a campaign, or nil when
// none is cached.
func (s *Store) CachedSnapshot(ctx context.Context, campaignID int64) (*domain.Campaign, error) {
	key := fmt.Sprintf(snapshotKeyFormat, campaignID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached snapshot: %w", err)
	}

	var c domain.Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	return &c, nil
}
