package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/hogtech/orderflow/internal/domain"
)

const (
	defaultSettingsTTL = 5 * time.Minute
	settingsKey        = "orderflow:settings:store"
)

// SettingsSource loads store settings from the system of record.
type SettingsSource interface {
	GetStoreSettings(ctx context.Context) (domain.StoreSettings, error)
}

// SettingsCache is a read-through TTL cache in front of the settings document. With a Redis
// client the cached copy is shared across instances; without one it lives in process memory.
type SettingsCache struct {
	source SettingsSource
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	local    domain.StoreSettings
	expires  time.Time
	hasLocal bool
}

// SettingsOption customises the cache.
type SettingsOption func(*SettingsCache)

// WithRedis shares cached settings through Redis.
func WithRedis(client *redis.Client) SettingsOption {
	return func(c *SettingsCache) {
		c.client = client
	}
}

// WithTTL overrides the default five minute TTL.
func WithTTL(ttl time.Duration) SettingsOption {
	return func(c *SettingsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) SettingsOption {
	return func(c *SettingsCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger reports cache backend failures.
func WithLogger(logger *zap.Logger) SettingsOption {
	return func(c *SettingsCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewSettingsCache constructs a settings cache over source.
func NewSettingsCache(source SettingsSource, opts ...SettingsOption) (*SettingsCache, error) {
	if source == nil {
		return nil, errors.New("settings cache: source is required")
	}
	c := &SettingsCache{
		source: source,
		ttl:    defaultSettingsTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// StoreSettings returns cached settings, reloading from the source once the TTL elapses.
func (c *SettingsCache) StoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	if c.client != nil {
		return c.fromRedis(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.hasLocal && now.Before(c.expires) {
		return c.local, nil
	}
	settings, err := c.source.GetStoreSettings(ctx)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	c.local = settings
	c.expires = now.Add(c.ttl)
	c.hasLocal = true
	return settings, nil
}

// Invalidate drops the cached copy so the next read hits the source.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.hasLocal = false
	c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, settingsKey).Err()
}

func (c *SettingsCache) fromRedis(ctx context.Context) (domain.StoreSettings, error) {
	data, err := c.client.Get(ctx, settingsKey).Bytes()
	switch {
	case err == nil:
		var settings domain.StoreSettings
		if uErr := json.Unmarshal(data, &settings); uErr == nil {
			return settings, nil
		}
		c.logger.Warn("settings cache: discarding undecodable entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("settings cache: redis get failed", zap.Error(err))
	}

	settings, err := c.source.GetStoreSettings(ctx)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	if payload, err := json.Marshal(settings); err == nil {
		if err := c.client.Set(ctx, settingsKey, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("settings cache: redis set failed", zap.Error(err))
		}
	}
	return settings, nil
}
