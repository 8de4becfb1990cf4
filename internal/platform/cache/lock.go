package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 30 * time.Second
	lockKeyPrefix  = "orderflow:lock:"
)

// releaseScript deletes the key only while it still holds our token so an expired lock taken
// over by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements a TTL-bounded mutual exclusion lock with SET NX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis backed locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Acquire takes the lock for key. acquired is false when another holder owns it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("redis locker: key is required")
	}
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	redisKey := lockKeyPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	}
	return release, true, nil
}

// MemoryLocker serialises holders within a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryLocker constructs an in-process locker whose entries expire after ttl.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &MemoryLocker{held: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("memory locker: key is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(l.ttl)
	l.held[key] = expires
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.Equal(expires) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
