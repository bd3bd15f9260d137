package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/metrics"
)

// Prefix namespaces every key written by the cache.
const Prefix = "marketintel:"

// DefaultTTL applies when Put is called with a zero ttl.
const DefaultTTL = time.Hour

// Cache types.
const (
	TypeAnalysis = "analysis"
	TypeSimilar  = "similar"
	TypeHolidays = "holidays"
)

// Params identify a cached computation.
type Params map[string]any

// Stats describes cache contents and process-local hit ratios.
type Stats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	Hits   int64          `json:"hits"`
	Misses int64          `json:"misses"`
}

// Store is a Redis-backed cache for analysis results.
type Store struct {
	redis  redis.UniversalClient
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps an existing Redis client.
func New(rdb redis.UniversalClient, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{redis: rdb, logger: logger}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr string, db int, password string, logger *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, logger), nil
}

// Key builds "<prefix><type>_<md5 of params as JSON>". JSON object keys are
// sorted so equal params always map to the same key.
func Key(cacheType string, params Params) string {
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte(fmt.Sprint(params))
	}
	sum := md5.Sum(raw)
	return Prefix + cacheType + "_" + hex.EncodeToString(sum[:])
}

// Get loads the entry for cacheType/params into dest. It reports whether
// the entry existed.
func (s *Store) Get(ctx context.Context, cacheType string, params Params, dest any) (bool, error) {
	data, err := s.redis.Get(ctx, Key(cacheType, params)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		metrics.IncCache(cacheType, "miss")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("cache.decode_failed",
			zap.String("type", cacheType),
			zap.Error(err))
		s.misses.Add(1)
		metrics.IncCache(cacheType, "miss")
		return false, nil
	}
	s.hits.Add(1)
	metrics.IncCache(cacheType, "hit")
	return true, nil
}

// Put stores value for cacheType/params with ttl (DefaultTTL when zero).
func (s *Store) Put(ctx context.Context, cacheType string, params Params, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := s.redis.Set(ctx, Key(cacheType, params), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (s *Store) Delete(ctx context.Context, cacheType string, params Params) error {
	return s.redis.Del(ctx, Key(cacheType, params)).Err()
}

func (s *Store) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, Prefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Stats counts live entries per type.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByType: map[string]int{}}
	err := s.scan(ctx, func(keys []string) error {
		for _, k := range keys {
			name := strings.TrimPrefix(k, Prefix)
			if i := strings.LastIndexByte(name, '_'); i > 0 {
				name = name[:i]
			}
			st.ByType[name]++
			st.Total++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	return st, nil
}

// Clear removes every entry under Prefix and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int, error) {
	var removed int
	err := s.scan(ctx, func(keys []string) error {
		n, err := s.redis.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("cache del: %w", err)
		}
		removed += int(n)
		return nil
	})
	if err != nil {
		return removed, err
	}
	s.logger.Info("cache.cleared", zap.Int("removed", removed))
	return removed, nil
}

// HealthCheck pings Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.redis.Close()
}
