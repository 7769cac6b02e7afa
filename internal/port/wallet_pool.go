package port

import (
	"context"
	"errors"

	"github.com/rl1809/usdt-pay/internal/core/domain"
)

// ErrNoFreeWallet is returned by Allocate when every wallet is in use.
var ErrNoFreeWallet = errors.New("no free wallet")

type WalletPool interface {
	// Allocate atomically claims a free wallet and returns its address.
	// Two concurrent callers never receive the same address.
	Allocate(ctx context.Context) (string, error)

	// Release marks the wallet free again. Releasing an already-free
	// wallet is a no-op.
	Release(ctx context.Context, address string) error

	// FetchAll returns every wallet with its current in-use flag.
	FetchAll(ctx context.Context) ([]domain.Wallet, error)
}
