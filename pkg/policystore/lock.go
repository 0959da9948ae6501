package policystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript releases a lock only if the caller still holds it,
// preventing one holder from releasing a lock acquired by another after
// its own lease expired.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// extendScript renews a held lock's TTL without releasing and
// reacquiring it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// RedisLock is a Redis-backed distributed mutual-exclusion lock used to
// serialize policy-store mutation (reload, pack swap) against other
// instances of the engine, so a policy reload in progress on one node
// cannot race a concurrent reload on another. It does not serialize
// Evaluate calls, which remain lock-free and local.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	token string
}

// NewRedisLock creates a lock over the given key, held for at most ttl
// before it is considered abandoned and eligible for another holder to
// acquire.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock, returning false (not an error) if it
// is already held.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token, err := randomToken()
	if err != nil {
		return false, fmt.Errorf("policystore: generate lock token: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("policystore: acquire lock %q: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release gives up the lock, a no-op if it was already lost (e.g. through
// TTL expiry).
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if _, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("policystore: release lock %q: %w", l.key, err)
	}
	l.token = ""
	return nil
}

// Extend renews the lock's TTL, used by a long-running reload to keep
// holding the lock past the original lease.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	if l.token == "" {
		return fmt.Errorf("policystore: extend called without held lock %q", l.key)
	}
	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("policystore: extend lock %q: %w", l.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return fmt.Errorf("policystore: lock %q no longer held", l.key)
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
