package port

import (
	"context"
	"errors"

	"github.com/rl1809/usdt-pay/internal/core/domain"
)

// ErrLedgerUnavailable wraps transient ledger failures (network errors,
// non-success envelopes). Callers recover by retrying on a later cycle.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// LedgerClient is the read-only view of the external chain. Both calls are
// idempotent and side-effect free.
type LedgerClient interface {
	// FetchTransfers returns the incoming token transfers recorded for an
	// address, in the order the ledger reports them.
	FetchTransfers(ctx context.Context, address string) ([]domain.LedgerTransaction, error)

	// ConfirmSuccess reports whether the transaction executed successfully
	// on-chain (not reverted or failed).
	ConfirmSuccess(ctx context.Context, transactionID string) (bool, error)
}
