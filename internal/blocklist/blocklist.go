// Package blocklist keeps phone numbers that must never become leads
// (staff, test devices, spam) in a Redis set.
package blocklist

import (
	"context"
	"fmt"
	"sort"

	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/phone"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "leads:blocked_numbers"

// Store is a Redis-backed set of blocked E.164 numbers. A nil Store blocks nothing.
type Store struct {
	rdb *redis.Client
	key string
}

// New wraps an existing Redis client.
func New(rdb *redis.Client, key string) *Store {
	if key == "" {
		key = defaultKey
	}
	return &Store{rdb: rdb, key: key}
}

// NewFromConfig connects using the configured Redis URL. It returns nil when
// Redis is not configured.
func NewFromConfig(cfg config.BlocklistConfig) (*Store, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opt), cfg.GetBlocklistKey()), nil
}

// IsBlocked reports whether number is on the list.
func (s *Store) IsBlocked(ctx context.Context, number string) (bool, error) {
	if s == nil {
		return false, nil
	}
	ok, err := s.rdb.SIsMember(ctx, s.key, phone.NormalizeE164(number)).Result()
	if err != nil {
		return false, fmt.Errorf("check blocklist: %w", err)
	}
	return ok, nil
}

// Add blocks number and returns its normalized form.
func (s *Store) Add(ctx context.Context, number string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("blocklist not configured")
	}
	normalized := phone.NormalizeE164(number)
	if err := s.rdb.SAdd(ctx, s.key, normalized).Err(); err != nil {
		return "", fmt.Errorf("add to blocklist: %w", err)
	}
	return normalized, nil
}

// Remove unblocks number. It reports whether the number was present.
func (s *Store) Remove(ctx context.Context, number string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("blocklist not configured")
	}
	n, err := s.rdb.SRem(ctx, s.key, phone.NormalizeE164(number)).Result()
	if err != nil {
		return false, fmt.Errorf("remove from blocklist: %w", err)
	}
	return n > 0, nil
}

// List returns all blocked numbers, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s == nil {
		return []string{}, nil
	}
	members, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list blocklist: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.rdb.Close()
}
