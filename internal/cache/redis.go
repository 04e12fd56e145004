package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

const redisKeyPrefix = "styletag:pred:"

type redisAPI interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// Redis shares predictions across processes.
type Redis struct {
	rdb        redisAPI
	log        *logger.Logger
	ttl        time.Duration
	maxRetries uint64
	backoff    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedis(log *logger.Logger, rdb redisAPI, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		rdb:        rdb,
		log:        log.With("service", "RedisCache"),
		ttl:        ttl,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

func (r *Redis) Get(ctx context.Context, key Key) (Prediction, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key.Hash()).Bytes()
	if errors.Is(err, goredis.Nil) {
		r.misses.Add(1)
		return Prediction{}, false, nil
	}
	if err != nil {
		return Prediction{}, false, fmt.Errorf("redis cache get: %w", err)
	}
	var p Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn("dropping undecodable cache entry", "doc_id", key.DocID, "paragraph_id", key.ParagraphID, "error", err)
		r.misses.Add(1)
		return Prediction{}, false, nil
	}
	r.hits.Add(1)
	return p, true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, p Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	k := redisKeyPrefix + key.Hash()
	b := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.rdb.Set(ctx, k, raw, r.ttl).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (r *Redis) Stats(context.Context) (Stats, error) {
	return Stats{Backend: "redis", Hits: r.hits.Load(), Misses: r.misses.Load(), Entries: -1}, nil
}
