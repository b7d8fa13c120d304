// Package callbackguard claims gateway tokens so a callback delivered twice
// is only processed once across every API instance.
package callbackguard

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "webpay:callback:"

type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// Claim reports true for the first caller of a token within ttl.
func (g *RedisGuard) Claim(ctx context.Context, token string) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+token, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

// Noop lets every claim through; the store-level guards still apply.
type Noop struct{}

func (Noop) Claim(context.Context, string) (bool, error) { return true, nil }
