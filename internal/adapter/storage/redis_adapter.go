package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

const (
	freeWalletsKey = "wallets:free"
	busyWalletsKey = "wallets:busy"
)

// Claim pops a free address and records it busy in one script, so two
// concurrent claimers can never pop the same address and a crash can never
// lose one between the two sets.
var claimWalletScript = redis.NewScript(`
local addr = redis.call('SPOP', KEYS[1])
if not addr then
	return false
end
redis.call('SADD', KEYS[2], addr)
return addr
`)

var releaseWalletScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 1 then
	redis.call('SADD', KEYS[1], ARGV[1])
end
return 1
`)

// RedisAdapter is a wallet pool backed by two address sets. It pairs with
// the MySQL order store via the composite finalizer.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Allocate(ctx context.Context) (string, error) {
	res, err := claimWalletScript.Run(ctx, r.client, []string{freeWalletsKey, busyWalletsKey}).Result()
	if err == redis.Nil {
		return "", port.ErrNoFreeWallet
	}
	if err != nil {
		return "", fmt.Errorf("claim wallet: %w", err)
	}
	address, ok := res.(string)
	if !ok {
		return "", port.ErrNoFreeWallet
	}
	return address, nil
}

// Release moves the address back to the free set. Releasing an address that
// is not busy is a no-op.
func (r *RedisAdapter) Release(ctx context.Context, address string) error {
	if err := releaseWalletScript.Run(ctx, r.client, []string{freeWalletsKey, busyWalletsKey}, address).Err(); err != nil {
		return fmt.Errorf("release wallet: %w", err)
	}
	return nil
}

func (r *RedisAdapter) FetchAll(ctx context.Context) ([]domain.Wallet, error) {
	free, err := r.client.SMembers(ctx, freeWalletsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch free wallets: %w", err)
	}
	busy, err := r.client.SMembers(ctx, busyWalletsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch busy wallets: %w", err)
	}

	wallets := make([]domain.Wallet, 0, len(free)+len(busy))
	for _, addr := range free {
		wallets = append(wallets, domain.Wallet{Address: addr})
	}
	for _, addr := range busy {
		wallets = append(wallets, domain.Wallet{Address: addr, InUse: true})
	}
	return wallets, nil
}

// Seed loads the pool from the provisioned wallet set at boot, replacing
// whatever state a previous run left behind.
func (r *RedisAdapter) Seed(ctx context.Context, wallets []domain.Wallet) error {
	if err := r.client.Del(ctx, freeWalletsKey, busyWalletsKey).Err(); err != nil {
		return fmt.Errorf("reset wallet sets: %w", err)
	}
	for _, w := range wallets {
		key := freeWalletsKey
		if w.InUse {
			key = busyWalletsKey
		}
		if err := r.client.SAdd(ctx, key, w.Address).Err(); err != nil {
			return fmt.Errorf("seed wallet %s: %w", w.Address, err)
		}
	}
	return nil
}
