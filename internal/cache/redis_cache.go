// Package cache is a Redis-backed cache for per-customer generation settings
// and the latest coverage summary. It is strictly optional: a nil *Cache is
// a valid receiver and every lookup misses, so callers degrade to
// recomputation without branching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"racc/internal/alarmgen"
	"racc/pkg/models"
)

// Config configures Redis access for the analysis cache.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Cache stores serialized settings and coverage summaries under
// customer-scoped keys.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "racc"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis cache: %w", err)
	}

	return &Cache{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), ttl: cfg.TTL}, nil
}

// Settings returns the cached generation settings for a customer.
func (c *Cache) Settings(ctx context.Context, customerID int64) (*alarmgen.Settings, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.settingsKey(customerID)).Bytes()
	if err != nil {
		return nil, false
	}
	var settings alarmgen.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, false
	}
	return &settings, true
}

// PutSettings stores generation settings for a customer.
func (c *Cache) PutSettings(ctx context.Context, customerID int64, settings alarmgen.Settings) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode cached settings: %w", err)
	}
	if err := c.client.Set(ctx, c.settingsKey(customerID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached settings: %w", err)
	}
	return nil
}

// Coverage returns the cached coverage summary for a customer.
func (c *Cache) Coverage(ctx context.Context, customerID int64) (*models.CoverageSummary, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.coverageKey(customerID)).Bytes()
	if err != nil {
		return nil, false
	}
	var summary models.CoverageSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false
	}
	return &summary, true
}

// PutCoverage stores the latest coverage summary for a customer.
func (c *Cache) PutCoverage(ctx context.Context, customerID int64, summary models.CoverageSummary) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode cached coverage: %w", err)
	}
	if err := c.client.Set(ctx, c.coverageKey(customerID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached coverage: %w", err)
	}
	return nil
}

// Invalidate drops the derived values for a customer. Called after imports
// and alarm generation mutate the underlying data. Stored settings are a
// policy, not derived data, so they survive invalidation.
func (c *Cache) Invalidate(ctx context.Context, customerID int64) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.coverageKey(customerID)).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) settingsKey(customerID int64) string {
	return c.prefix + ":settings:" + strconv.FormatInt(customerID, 10)
}

func (c *Cache) coverageKey(customerID int64) string {
	return c.prefix + ":coverage:" + strconv.FormatInt(customerID, 10)
}
