package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

var ErrInvalidAmount = errors.New("invalid amount")

type OrderService struct {
	pool   port.WalletPool
	store  port.OrderStore
	window time.Duration
}

func NewOrderService(pool port.WalletPool, store port.OrderStore, window time.Duration) *OrderService {
	return &OrderService{
		pool:   pool,
		store:  store,
		window: window,
	}
}

// CreateOrder claims a free wallet, stamps a new pending order against it
// and persists the order. If the persist fails the wallet is released again
// so it is not stranded busy.
func (s *OrderService) CreateOrder(ctx context.Context, amount decimal.Decimal) (domain.PaymentOrder, error) {
	if !amount.IsPositive() {
		return domain.PaymentOrder{}, ErrInvalidAmount
	}

	address, err := s.pool.Allocate(ctx)
	if err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("allocate wallet: %w", err)
	}

	now := time.Now()
	order := domain.PaymentOrder{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Address:   address,
		Amount:    amount,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.window),
	}

	if err := s.store.Create(ctx, order); err != nil {
		if relErr := s.pool.Release(ctx, address); relErr != nil {
			log.Printf("CRITICAL: failed to release wallet %s after create failure: %v", address, relErr)
		}
		return domain.PaymentOrder{}, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}
