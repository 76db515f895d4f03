package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKey = "agent:journal"

// RedisRepo stores the journal as a capped Redis list, newest first, so the
// call log survives agent restarts.
type RedisRepo struct {
	rdb *redis.Client
	max int64
}

func NewRedisRepo(rdb *redis.Client, max int) *RedisRepo {
	if max <= 0 {
		max = 500
	}
	return &RedisRepo{rdb: rdb, max: int64(max)}
}

func (r *RedisRepo) Append(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, redisKey, raw)
	pipe.LTrim(ctx, redisKey, 0, r.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

func (r *RedisRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	raws, err := r.rdb.LRange(ctx, redisKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("journal: range: %w", err)
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// Skip malformed rows instead of failing the whole read.
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
