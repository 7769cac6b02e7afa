package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusExpired OrderStatus = "expired"
)

// PaymentOrder binds a requested USDT amount to a receiving address for a
// fixed payment window. Status only ever moves pending -> paid or
// pending -> expired.
type PaymentOrder struct {
	ID        string
	Address   string
	Amount    decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the order can no longer be paid at t. An order
// without an expiry timestamp is treated as already expired.
func (o PaymentOrder) Expired(t time.Time) bool {
	return o.ExpiresAt.IsZero() || t.After(o.ExpiresAt)
}
