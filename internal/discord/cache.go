package discord

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"

	appLog "discordcal/internal/log"
)

// NameCache remembers guild and channel display names between lookups.
// kind is "guild" or "channel".
type NameCache interface {
	Get(kind, id string) (string, bool)
	Set(kind, id, name string)
}

// MemoryCache is a process-local NameCache. Entries never expire.
type MemoryCache struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{names: make(map[string]string)}
}

func (m *MemoryCache) Get(kind, id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.names[kind+":"+id]
	return name, ok
}

func (m *MemoryCache) Set(kind, id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[kind+":"+id] = name
}

// ConnSource hands out Redis connections; *redis.Pool satisfies it.
type ConnSource interface {
	Get() redis.Conn
}

// RedisCache stores names in Redis so they survive restarts and can be
// shared between replicas. Redis failures are logged and treated as misses.
type RedisCache struct {
	pool ConnSource
	ttl  time.Duration
}

// NewRedisCache returns a RedisCache. A zero ttl stores keys without expiry.
func NewRedisCache(pool ConnSource, ttl time.Duration) *RedisCache {
	return &RedisCache{pool: pool, ttl: ttl}
}

// NewRedisPool creates a redigo pool dialing addr, which may be a
// redis:// URL or a host:port pair.
func NewRedisPool(addr string) *redis.Pool {
	dial := func() (redis.Conn, error) {
		if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
			return redis.DialURL(addr)
		}
		return redis.Dial("tcp", addr)
	}
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 4 * time.Minute,
		Dial:        dial,
	}
}

func redisKey(kind, id string) string {
	return "discordcal:" + kind + ":" + id
}

func (r *RedisCache) Get(kind, id string) (string, bool) {
	conn := r.pool.Get()
	defer conn.Close()

	name, err := redis.String(conn.Do("GET", redisKey(kind, id)))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			appLog.Warn("redis cache get failed", "key", redisKey(kind, id), "err", err)
		}
		return "", false
	}
	return name, true
}

func (r *RedisCache) Set(kind, id, name string) {
	conn := r.pool.Get()
	defer conn.Close()

	var err error
	if r.ttl > 0 {
		secs := max(int64(r.ttl/time.Second), 1)
		_, err = conn.Do("SET", redisKey(kind, id), name, "EX", secs)
	} else {
		_, err = conn.Do("SET", redisKey(kind, id), name)
	}
	if err != nil {
		appLog.Warn("redis cache set failed", "key", redisKey(kind, id), "err", err)
	}
}
