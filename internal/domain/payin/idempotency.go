package payin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	lockPrefix = "payin:create:"
	lockTTL    = 30 * time.Second
)

// IdempotencyKey derives the dedup key from the caller's identity, the amount
// and the caller-supplied token. Without a token every call gets a fresh key.
func IdempotencyKey(userID uuid.UUID, amount decimal.Decimal, token string) string {
	if token == "" {
		token = "auto:" + uuid.New().String()
	}
	sum := sha256.Sum256([]byte(userID.String() + "|" + amount.String() + "|" + token))
	return hex.EncodeToString(sum[:])
}

// Locker serialises concurrent creates that share a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Guard finds prior payins by idempotency key and holds the in-flight lock.
type Guard struct {
	repo   Repository
	locker Locker
}

// NewGuard creates an idempotency guard. locker may be nil.
func NewGuard(repo Repository, locker Locker) *Guard {
	return &Guard{repo: repo, locker: locker}
}

// Lookup returns the payin stored under key, or nil.
func (g *Guard) Lookup(ctx context.Context, key string) (*PayinRequest, error) {
	return g.repo.GetByIdempotencyKey(ctx, key)
}

// Begin takes the in-flight lock for key. It fails with ErrCreateInProgress
// while another create holds it; an unreachable lock store is logged and skipped.
func (g *Guard) Begin(ctx context.Context, key string) (func(), error) {
	if g.locker == nil {
		return func() {}, nil
	}
	release, acquired, err := g.locker.Acquire(ctx, lockPrefix+key, lockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Idempotency lock unavailable, continuing without it")
		return func() {}, nil
	}
	if !acquired {
		return nil, ErrCreateInProgress
	}
	return release, nil
}

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX and an owner token.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("redis locker is not configured")
	}
	owner := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Failed to release idempotency lock")
		}
	}
	return release, true, nil
}
