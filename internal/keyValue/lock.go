package keyValue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL   = 30 * time.Second
	lockRetry = 20 * time.Millisecond
)

func ServerKey(serverID int64) string {
	return fmt.Sprintf("server:%d", serverID)
}

func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Lock acquires every key, always in sorted order so two callers locking
// overlapping sets cannot deadlock. The returned function releases them all.
// Lock blocks until the keys are free or ctx is done.
func (kv *Store) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	released := make([]func(), 0, len(sorted))
	unlock := func() {
		for i := len(released) - 1; i >= 0; i-- {
			released[i]()
		}
	}

	for _, key := range sorted {
		var release func()
		var err error
		if kv.selfContained {
			release, err = kv.lockLocal(ctx, key)
		} else {
			release, err = kv.lockRedis(ctx, key)
		}
		if err != nil {
			unlock()
			return nil, fmt.Errorf("failed to lock %s: %w", key, err)
		}
		released = append(released, release)
	}

	return unlock, nil
}

func (kv *Store) lockLocal(ctx context.Context, key string) (func(), error) {
	kv.locksMutex.Lock()
	sem, ok := kv.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		kv.locks[key] = sem
	}
	kv.locksMutex.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (kv *Store) lockRedis(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()

	for {
		ok, err := kv.redisClient.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// the caller's context may already be canceled, release regardless
		err := releaseScript.Run(context.Background(), kv.redisClient, []string{lockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			kv.sugar.Warnf("Failed to release lock %s: %v", lockKey, err)
		}
	}, nil
}
