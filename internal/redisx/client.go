package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// ApplyOnce runs the writes queued by fn in one MULTI/EXEC together with
// setting dedupKey, unless dedupKey already exists. Either both the marker and
// the writes land or neither does. It reports false for an already applied key.
func ApplyOnce(ctx context.Context, rdb *redis.Client, dedupKey string, ttl time.Duration, fn func(p redis.Pipeliner)) (bool, error) {
	applied := false
	err := rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, dedupKey).Result()
		if err != nil || n > 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, dedupKey, "1", ttl)
			fn(p)
			return nil
		})
		applied = err == nil
		return err
	}, dedupKey)
	if err != nil {
		return false, err
	}
	return applied, nil
}
