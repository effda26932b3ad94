package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore keeps sessions in Redis so they survive restarts and are
// shared between instances. Locks are tokens with a short TTL that is
// renewed while the holder is still running.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration

	mu         sync.Mutex
	heartbeats map[string]context.CancelFunc
}

// NewRedisClient parses url, applies password and db overrides and pings the server.
func NewRedisClient(url, password string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store using client. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string, ttl, lockTTL time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		lockTTL: lockTTL,

		heartbeats: make(map[string]context.CancelFunc),
	}
}

func (r *RedisStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	result, err := r.client.Get(ctx, r.key("session", chatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(chatID), nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(result), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	c := s.Clone()
	c.LastActivity = time.Now()

	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key("session", s.ChatID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Reset(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, r.key("session", chatID)).Err()
}

func (r *RedisStore) AcquireLock(ctx context.Context, chatID int64, timeout time.Duration) (string, bool, error) {
	token := uuid.NewString()
	key := r.key("lock", chatID)
	deadline := time.Now().Add(timeout)

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			r.startHeartbeat(key, token)
			return token, true, nil
		}
		if time.Now().Add(lockPollInterval).After(deadline) {
			return "", false, nil
		}

		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (r *RedisStore) ReleaseLock(ctx context.Context, chatID int64, token string) error {
	r.mu.Lock()
	stop, ok := r.heartbeats[token]
	delete(r.heartbeats, token)
	r.mu.Unlock()
	if ok {
		stop()
	}

	if err := releaseScript.Run(ctx, r.client, []string{r.key("lock", chatID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// startHeartbeat renews the lock every third of its TTL until ReleaseLock
// stops it or the token is no longer the holder.
func (r *RedisStore) startHeartbeat(key, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.heartbeats[token] = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewed, err := renewScript.Run(ctx, r.client, []string{key}, token, r.lockTTL.Milliseconds()).Int()
				if err == nil && renewed == 0 {
					return
				}
			}
		}
	}()
}

func (r *RedisStore) MarkUpdate(ctx context.Context, updateID int) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+"update:"+strconv.Itoa(updateID), 1, updateWindow).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark update: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(kind string, chatID int64) string {
	return fmt.Sprintf("%s%s:%d", r.prefix, kind, chatID)
}
