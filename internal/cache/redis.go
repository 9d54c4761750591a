package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/cabinbooking/config"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client          redis.UniversalClient
	availabilityTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, availabilityTTL time.Duration) *RedisCache {
	return NewRedisCacheFromClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		availabilityTTL,
	)
}

func NewRedisCacheFromClient(client redis.UniversalClient, availabilityTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, availabilityTTL: availabilityTTL}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetCredential returns nil, nil when no credential is stored.
func (c *RedisCache) GetCredential(ctx context.Context) (*domain.Credential, error) {
	data, err := c.client.Get(ctx, credentialKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cred domain.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *RedisCache) SetCredential(ctx context.Context, cred domain.Credential, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, credentialKey(), payload, ttl).Err()
}

// AcquireReservationLock returns the holder token needed to release the lock.
func (c *RedisCache) AcquireReservationLock(ctx context.Context, idempotencyKey string, ttl time.Duration) (string, bool, error) {
	holder := uuid.NewString()
	ok, err := c.client.SetNX(ctx, reservationLockKey(idempotencyKey), holder, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return holder, true, nil
}

// ReleaseReservationLock deletes the lock only while holder still owns it.
func (c *RedisCache) ReleaseReservationLock(ctx context.Context, idempotencyKey, holder string) error {
	return releaseLockScript.Run(ctx, c.client, []string{reservationLockKey(idempotencyKey)}, holder).Err()
}

func (c *RedisCache) GetAvailability(ctx context.Context, key string) (*domain.Availability, error) {
	data, err := c.client.Get(ctx, availabilityKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var a domain.Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *RedisCache) SetAvailability(ctx context.Context, key string, a domain.Availability) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKey(key), payload, c.availabilityTTL).Err()
}

func credentialKey() string {
	return "upstream:credential"
}

func reservationLockKey(idempotencyKey string) string {
	return fmt.Sprintf("lock:reservation:%s", idempotencyKey)
}

func availabilityKey(key string) string {
	return fmt.Sprintf("cache:availability:%s", key)
}
