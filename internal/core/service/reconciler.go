package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

const (
	// TokenSymbol is the only asset accepted as payment.
	TokenSymbol = "USDT"

	// TokenDecimals is the asset's fixed decimal exponent, used to convert
	// order amounts to smallest-denomination units.
	TokenDecimals = 6
)

// Reconciler periodically sweeps pending orders: expired ones are finalized
// as expired, the rest are checked against the ledger and finalized as paid
// when a qualifying transfer is found. Sweeps never overlap: the ticker is
// consumed by a single loop, so ticks arriving mid-sweep are dropped.
type Reconciler struct {
	store    port.OrderStore
	ledger   port.LedgerClient
	fin      port.Finalizer
	interval time.Duration
}

func NewReconciler(store port.OrderStore, ledger port.LedgerClient, fin port.Finalizer, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		ledger:   ledger,
		fin:      fin,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("reconciler started, interval %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep processes every pending order independently. An error on one order
// is logged and never aborts the rest of the cycle.
func (r *Reconciler) sweep(ctx context.Context) {
	now := time.Now()

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		log.Printf("sweep: list pending orders: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	log.Printf("sweep: %d pending orders", len(pending))

	for _, order := range pending {
		// Expiry is decided before any ledger lookup, so a payment landing
		// after the window never resurrects an expired order.
		if order.Expired(now) {
			if err := r.fin.Finalize(ctx, order.ID, domain.OrderStatusExpired, order.Address); err != nil {
				log.Printf("sweep: expire order %s: %v", order.ID, err)
				continue
			}
			log.Printf("order %s expired, wallet %s released", order.ID, order.Address)
			continue
		}

		txs, err := r.ledger.FetchTransfers(ctx, order.Address)
		if err != nil {
			// Fail-open: a ledger outage leaves the order pending and its
			// wallet busy until a later cycle succeeds.
			log.Printf("sweep: fetch transfers for %s: %v", order.Address, err)
			continue
		}

		tx, found := r.match(ctx, order, txs)
		if !found {
			continue
		}

		if err := r.fin.Finalize(ctx, order.ID, domain.OrderStatusPaid, order.Address); err != nil {
			log.Printf("sweep: finalize paid order %s: %v", order.ID, err)
			continue
		}
		log.Printf("order %s paid by tx %s, wallet %s released", order.ID, tx.ID, order.Address)
	}
}

// match scans transfers in the order the ledger returned them and picks the
// first one that passes every filter and confirms successful on-chain. A
// transaction whose confirmation fails is skipped, not treated as final.
func (r *Reconciler) match(ctx context.Context, order domain.PaymentOrder, txs []domain.LedgerTransaction) (domain.LedgerTransaction, bool) {
	// Truncating conversion: sub-unit precision beyond the exponent is
	// floored, never rounded up.
	targetUnits := order.Amount.Shift(TokenDecimals).IntPart()

	for _, tx := range txs {
		if tx.BlockTimestamp.Before(order.CreatedAt) || tx.BlockTimestamp.After(order.ExpiresAt) {
			continue
		}
		if !strings.EqualFold(tx.TokenSymbol, TokenSymbol) || !strings.EqualFold(tx.To, order.Address) {
			continue
		}
		if tx.ValueUnits < targetUnits {
			continue
		}

		ok, err := r.ledger.ConfirmSuccess(ctx, tx.ID)
		if err != nil {
			log.Printf("confirm tx %s: %v", tx.ID, err)
			continue
		}
		if !ok {
			log.Printf("tx %s execution not successful, scanning on", tx.ID)
			continue
		}
		return tx, true
	}
	return domain.LedgerTransaction{}, false
}

// CompositeFinalizer builds order finalization out of the idempotent store
// and pool primitives, for pairings where the two cannot share one
// transaction. The transition runs first: a crash in between leaves a busy
// wallet on a terminal order, which is recoverable, whereas releasing first
// could hand the address to a second order while the first is still pending.
type CompositeFinalizer struct {
	store port.OrderStore
	pool  port.WalletPool
}

func NewCompositeFinalizer(store port.OrderStore, pool port.WalletPool) *CompositeFinalizer {
	return &CompositeFinalizer{store: store, pool: pool}
}

func (f *CompositeFinalizer) Finalize(ctx context.Context, orderID string, status domain.OrderStatus, address string) error {
	if err := f.store.Transition(ctx, orderID, status); err != nil {
		return err
	}
	return f.pool.Release(ctx, address)
}
