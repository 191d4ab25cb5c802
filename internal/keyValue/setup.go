package keyValue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

// Store is a small expiring key value cache with per-key locks. When self
// contained it lives in process memory, otherwise in redis so several
// backend instances share it.
type Store struct {
	sugar         *zap.SugaredLogger
	redisClient   *redis.Client
	selfContained bool

	mutex   sync.RWMutex
	hashmap map[string]Value

	locksMutex sync.Mutex
	locks      map[string]chan struct{}

	stop chan struct{}
}

func New(sugar *zap.SugaredLogger, redisClient *redis.Client, selfContained bool) *Store {
	kv := &Store{
		sugar:         sugar,
		redisClient:   redisClient,
		selfContained: selfContained || redisClient == nil,
		hashmap:       make(map[string]Value),
		locks:         make(map[string]chan struct{}),
		stop:          make(chan struct{}),
	}

	if kv.selfContained {
		go kv.checkForLocalExpiredKeys()
	}

	return kv
}

// Close stops the local expiry sweeper.
func (kv *Store) Close() {
	select {
	case <-kv.stop:
	default:
		close(kv.stop)
	}
}

func (kv *Store) checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-kv.stop:
			return
		case <-ticker.C:
			kv.sweep(time.Now())
		}
	}
}

func (kv *Store) sweep(now time.Time) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	for key, v := range kv.hashmap {
		if v.expires.Before(now) {
			delete(kv.hashmap, key)
		}
	}
}

func (kv *Store) Get(ctx context.Context, key string) (string, error) {
	debugText := fmt.Sprintf("Getting value of key [%s]", key)
	if kv.selfContained {
		kv.sugar.Debugf("%s from hashmap", debugText)

		kv.mutex.RLock()
		defer kv.mutex.RUnlock()

		v, ok := kv.hashmap[key]
		if !ok || v.expires.Before(time.Now()) {
			return "", nil
		}

		return v.value, nil
	}

	kv.sugar.Debugf("%s from redis", debugText)

	value, err := kv.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func (kv *Store) Set(ctx context.Context, key string, value string, expires time.Duration) error {
	debugText := fmt.Sprintf("Setting value of key [%s]", key)
	if kv.selfContained {
		kv.sugar.Debugf("%s in hashmap", debugText)

		kv.mutex.Lock()
		defer kv.mutex.Unlock()

		kv.hashmap[key] = Value{value, time.Now().Add(expires)}

		return nil
	}

	kv.sugar.Debugf("%s in redis", debugText)
	_, err := kv.redisClient.Set(ctx, key, value, expires).Result()
	return err
}
