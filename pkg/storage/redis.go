package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sentry:model:"

// RedisStore keeps snapshots in Redis under "sentry:model:{workload}". A TTL
// of zero stores keys without expiry.
//
// Command retries are disabled: a failed call surfaces immediately and the
// retrain loop decides what to do on its next tick.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to addr and verifies the connection with PING.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   -1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect to redis at %s: %v", ErrStoreUnavailable, addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(workload string) string {
	return redisKeyPrefix + workload
}

func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := validateWorkload(s.Workload); err != nil {
		return err
	}
	data, err := encodeSnapshot(s)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return fmt.Errorf("%w: redis client closed", ErrStoreUnavailable)
	}
	if err := r.client.Set(ctx, redisKey(s.Workload), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisStore) GetLatest(ctx context.Context, workload string) (Snapshot, bool, error) {
	if err := validateWorkload(workload); err != nil {
		return Snapshot{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return Snapshot{}, false, fmt.Errorf("%w: redis client closed", ErrStoreUnavailable)
	}

	data, err := r.client.Get(ctx, redisKey(workload)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}

// Close closes the client. It is safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
