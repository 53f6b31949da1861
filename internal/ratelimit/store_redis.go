// Package ratelimit provides the Redis-backed counting store.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultStoreTimeout = 300 * time.Millisecond

// RedisStore implements Store against a Redis instance. Events live in one
// sorted set per identity scored by millisecond timestamps; all windows are
// answered from that set in a single MULTI/EXEC round trip, so the
// increment and the counts are indivisible relative to concurrent callers.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.UniversalClient, prefix string, timeout time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required: %w", ErrInvalidConfig)
	}
	if prefix == "" {
		prefix = "rl:"
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &RedisStore{client: client, prefix: prefix, timeout: timeout}, nil
}

// RecordAndCount records one event for the key and counts events inside
// each window. The operation completes even if the caller's context is
// canceled mid-flight so no window is left partially recorded.
func (s *RedisStore) RecordAndCount(ctx context.Context, key string, windows []WindowKind, now time.Time) ([]WindowResult, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}
	if key == "" {
		return nil, ErrInvalidInput
	}
	if len(windows) == 0 {
		windows = Windows()
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	zkey := s.prefix + "cnt:" + key
	nowMs := now.UnixMilli()
	horizon := largestWindow()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	counts := make([]*redis.IntCmd, len(windows))
	_, err := s.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(opCtx, zkey, "0", strconv.FormatInt(nowMs-horizon.Milliseconds(), 10))
		pipe.ZAdd(opCtx, zkey, redis.Z{Score: float64(nowMs), Member: member})
		for i, window := range windows {
			min := "(" + strconv.FormatInt(nowMs-window.Duration().Milliseconds(), 10)
			counts[i] = pipe.ZCount(opCtx, zkey, min, "+inf")
		}
		pipe.Expire(opCtx, zkey, horizon+retentionMargin)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: record and count: %v", ErrStoreUnavailable, err)
	}

	results := make([]WindowResult, len(windows))
	for i, window := range windows {
		count, cmdErr := counts[i].Result()
		results[i] = WindowResult{Window: window, Count: count, Err: cmdErr}
	}
	return results, nil
}

// GetSession loads session metadata. A missing or expired session returns
// nil without error.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(opCtx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return sessionFromFields(id, fields), nil
}

// PutSession writes session metadata with the configured TTL.
func (s *RedisStore) PutSession(ctx context.Context, rec *SessionRecord, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}
	if rec == nil || rec.ID == "" {
		return ErrInvalidIdentity
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	hkey := s.sessionKey(rec.ID)
	_, err := s.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.HSet(opCtx, hkey,
			"created_at", rec.CreatedAt.UnixNano(),
			"ip", rec.IP,
			"fp", rec.Fingerprint,
			"total", rec.TotalRequests,
			"suspicion", rec.SuspicionScore,
			"last", rec.LastRequestAt.UnixNano(),
		)
		pipe.Expire(opCtx, hkey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TouchSession bumps request and suspicion counters, refreshes the TTL,
// and returns the post-update record. Suspicion only ever increases.
func (s *RedisStore) TouchSession(ctx context.Context, id string, addSuspicion int64, now time.Time, ttl time.Duration) (*SessionRecord, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}
	if addSuspicion < 0 {
		addSuspicion = 0
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	hkey := s.sessionKey(id)
	var after *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(opCtx, hkey, "total", 1)
		if addSuspicion > 0 {
			pipe.HIncrBy(opCtx, hkey, "suspicion", addSuspicion)
		}
		pipe.HSet(opCtx, hkey, "last", now.UnixNano())
		pipe.Expire(opCtx, hkey, ttl)
		after = pipe.HGetAll(opCtx, hkey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: touch session: %v", ErrStoreUnavailable, err)
	}
	fields, err := after.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: touch session: %v", ErrStoreUnavailable, err)
	}
	return sessionFromFields(id, fields), nil
}

// Healthy reports whether Redis answers a ping within the timeout.
func (s *RedisStore) Healthy(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Ping(opCtx).Err() == nil
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + "sess:" + id
}

// opContext detaches from caller cancellation so in-flight store writes
// complete, while still bounding the operation with the store timeout.
func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func sessionFromFields(id string, fields map[string]string) *SessionRecord {
	rec := &SessionRecord{ID: id}
	rec.IP = fields["ip"]
	rec.Fingerprint = fields["fp"]
	rec.TotalRequests = parseIntField(fields["total"])
	rec.SuspicionScore = parseIntField(fields["suspicion"])
	if nanos := parseIntField(fields["created_at"]); nanos > 0 {
		rec.CreatedAt = time.Unix(0, nanos)
	}
	if nanos := parseIntField(fields["last"]); nanos > 0 {
		rec.LastRequestAt = time.Unix(0, nanos)
	}
	return rec
}

func parseIntField(value string) int64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
