package port

import (
	"context"
	"errors"

	"github.com/rl1809/usdt-pay/internal/core/domain"
)

// ErrDuplicateID is returned by Create on an order ID collision.
var ErrDuplicateID = errors.New("duplicate order id")

type OrderStore interface {
	// Create persists a new pending order.
	Create(ctx context.Context, order domain.PaymentOrder) error

	// ListPending returns all orders still pending, in no particular order.
	ListPending(ctx context.Context) ([]domain.PaymentOrder, error)

	// Transition moves a pending order to a terminal status. It is a no-op
	// if the order is no longer pending, which makes finalization safe to
	// retry.
	Transition(ctx context.Context, id string, status domain.OrderStatus) error
}

// Finalizer resolves an order: the status transition and the wallet release
// are applied as one unit so a terminal order is never left holding a busy
// wallet.
type Finalizer interface {
	Finalize(ctx context.Context, orderID string, status domain.OrderStatus, address string) error
}
