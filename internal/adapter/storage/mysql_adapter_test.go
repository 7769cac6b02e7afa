package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/usdtpay?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	ctx := context.Background()
	db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS wallets (
		address VARCHAR(64) PRIMARY KEY,
		in_use TINYINT(1) NOT NULL DEFAULT 0
	)`)
	db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		address VARCHAR(64) NOT NULL,
		amount DECIMAL(20,6) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		expires_at DATETIME(6) NULL
	)`)
	return db
}

func resetTables(t *testing.T, db *sql.DB, wallets ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		t.Fatalf("reset orders: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM wallets`); err != nil {
		t.Fatalf("reset wallets: %v", err)
	}
	for _, w := range wallets {
		if _, err := db.ExecContext(ctx, `INSERT INTO wallets (address, in_use) VALUES (?, 0)`, w); err != nil {
			t.Fatalf("seed wallet: %v", err)
		}
	}
}

func TestAllocate_Exclusive(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1", "TAddr2", "TAddr3")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	var (
		mu        sync.Mutex
		allocated []string
		noFree    int
		wg        sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := adapter.Allocate(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				noFree++
				return
			}
			allocated = append(allocated, addr)
		}()
	}
	wg.Wait()

	if len(allocated) != 3 {
		t.Fatalf("expected 3 allocations, got %d (noFree=%d)", len(allocated), noFree)
	}
	seen := make(map[string]bool)
	for _, addr := range allocated {
		if seen[addr] {
			t.Errorf("address %s allocated twice", addr)
		}
		seen[addr] = true
	}

	if _, err := adapter.Allocate(ctx); err != port.ErrNoFreeWallet {
		t.Errorf("expected ErrNoFreeWallet, got %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	addr, err := adapter.Allocate(ctx)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := adapter.Release(ctx, addr); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Releasing an already-free wallet is a no-op.
	if err := adapter.Release(ctx, addr); err != nil {
		t.Fatalf("second release: %v", err)
	}

	if _, err := adapter.Allocate(ctx); err != nil {
		t.Errorf("wallet not reusable after release: %v", err)
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	order := domain.PaymentOrder{
		ID:        "dup-order",
		Address:   "TAddr1",
		Amount:    decimal.RequireFromString("10.000000"),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(20 * time.Minute),
	}
	if err := adapter.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := adapter.Create(ctx, order); err != port.ErrDuplicateID {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestListPending_RoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	created := time.Now().Truncate(time.Microsecond)
	order := domain.PaymentOrder{
		ID:        "pending-order",
		Address:   "TAddr1",
		Amount:    decimal.RequireFromString("10.500000"),
		Status:    domain.OrderStatusPending,
		CreatedAt: created,
		ExpiresAt: created.Add(20 * time.Minute),
	}
	if err := adapter.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := adapter.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending order, got %d", len(pending))
	}
	got := pending[0]
	if got.ID != order.ID || got.Address != order.Address {
		t.Errorf("unexpected order %+v", got)
	}
	if !got.Amount.Equal(order.Amount) {
		t.Errorf("expected amount %s, got %s", order.Amount, got.Amount)
	}
	if !got.ExpiresAt.Equal(order.ExpiresAt) {
		t.Errorf("expected expires_at %s, got %s", order.ExpiresAt, got.ExpiresAt)
	}
}

func TestTransition_NoOpWhenTerminal(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	order := domain.PaymentOrder{
		ID:        "terminal-order",
		Address:   "TAddr1",
		Amount:    decimal.NewFromInt(10),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(20 * time.Minute),
	}
	if err := adapter.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := adapter.Transition(ctx, order.ID, domain.OrderStatusPaid); err != nil {
		t.Fatalf("transition: %v", err)
	}
	// A second transition against a terminal order is a no-op, not an error.
	if err := adapter.Transition(ctx, order.ID, domain.OrderStatusExpired); err != nil {
		t.Fatalf("second transition: %v", err)
	}

	var status string
	db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, order.ID).Scan(&status)
	if status != string(domain.OrderStatusPaid) {
		t.Errorf("expected status paid, got %s", status)
	}
}

func TestFinalize_TransitionAndRelease(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()
	resetTables(t, db, "TAddr1")

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	addr, err := adapter.Allocate(ctx)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	order := domain.PaymentOrder{
		ID:        fmt.Sprintf("fin-order-%d", time.Now().UnixNano()),
		Address:   addr,
		Amount:    decimal.NewFromInt(10),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(20 * time.Minute),
	}
	if err := adapter.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := adapter.Finalize(ctx, order.ID, domain.OrderStatusPaid, addr); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var status string
	db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, order.ID).Scan(&status)
	if status != string(domain.OrderStatusPaid) {
		t.Errorf("expected status paid, got %s", status)
	}
	var inUse bool
	db.QueryRowContext(ctx, `SELECT in_use FROM wallets WHERE address = ?`, addr).Scan(&inUse)
	if inUse {
		t.Error("wallet still marked in use after finalize")
	}
}
