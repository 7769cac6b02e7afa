package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

const mysqlDupEntry = 1062

// MySQLAdapter is the authoritative store: it implements the wallet pool,
// the order store and transactional finalization against one database.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Allocate claims one free wallet inside a transaction. SKIP LOCKED keeps
// concurrent claimers from queueing on the same row, so no two callers can
// observe and take the same address.
func (m *MySQLAdapter) Allocate(ctx context.Context) (string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var address string
	err = tx.QueryRowContext(ctx, `
		SELECT address FROM wallets
		WHERE in_use = 0
		LIMIT 1 FOR UPDATE SKIP LOCKED`,
	).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", port.ErrNoFreeWallet
	}
	if err != nil {
		return "", fmt.Errorf("select free wallet: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET in_use = 1 WHERE address = ?`, address,
	); err != nil {
		return "", fmt.Errorf("mark wallet in use: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return address, nil
}

func (m *MySQLAdapter) Release(ctx context.Context, address string) error {
	if _, err := m.db.ExecContext(ctx, `
		UPDATE wallets SET in_use = 0 WHERE address = ?`, address,
	); err != nil {
		return fmt.Errorf("release wallet: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) FetchAll(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT address, in_use FROM wallets`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Address, &w.InUse); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (m *MySQLAdapter) Create(ctx context.Context, order domain.PaymentOrder) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (id, address, amount, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.Address, order.Amount.String(), order.Status,
		order.CreatedAt, order.ExpiresAt,
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDupEntry {
		return port.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListPending(ctx context.Context) ([]domain.PaymentOrder, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, address, amount, status, created_at, expires_at
		FROM orders WHERE status = ?`, domain.OrderStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Transition is a guarded update: zero rows affected means the order was
// already resolved, which is not an error.
func (m *MySQLAdapter) Transition(ctx context.Context, id string, status domain.OrderStatus) error {
	if _, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		status, id, domain.OrderStatusPending,
	); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// Finalize applies the status transition and the wallet release in one
// transaction, so a terminal order can never be left holding a busy wallet.
func (m *MySQLAdapter) Finalize(ctx context.Context, orderID string, status domain.OrderStatus, address string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		status, orderID, domain.OrderStatusPending,
	); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET in_use = 0 WHERE address = ?`, address,
	); err != nil {
		return fmt.Errorf("release wallet: %w", err)
	}

	return tx.Commit()
}

func scanOrder(rows *sql.Rows) (domain.PaymentOrder, error) {
	var (
		order     domain.PaymentOrder
		amount    string
		expiresAt sql.NullTime
	)
	if err := rows.Scan(&order.ID, &order.Address, &amount, &order.Status,
		&order.CreatedAt, &expiresAt); err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("scan order: %w", err)
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	order.Amount = amt

	// A NULL expiry stays the zero time, which the core treats as already
	// expired.
	if expiresAt.Valid {
		order.ExpiresAt = expiresAt.Time
	}
	return order, nil
}
