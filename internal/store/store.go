package store

import (
	"context"

	"goldmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicate means a row with the same order hash already exists:
	// the same parameters were already listed.
	ErrDuplicate = errors.New("order already exists")
	// ErrNotFound means no row carries the requested order hash.
	ErrNotFound = errors.New("order not found")
	// ErrTerminal means the row sits in a terminal state that differs from
	// the requested transition target.
	ErrTerminal = errors.New("order is in a terminal state")
)

const uniqueViolation = "23505"

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) InsertOrder(ctx context.Context, order *models.StoredOrder) error {
	// RETURNING reflects the database-assigned timestamps back into the
	// row so callers can respond with what was actually stored.
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO orders (
			order_hash, maker, token_contract, token_id, price_wei,
			start_time, end_time, counter, signature, parameters, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`,
		order.OrderHash,
		order.Maker,
		order.TokenContract,
		order.TokenID,
		order.PriceWei,
		order.StartTime,
		order.EndTime,
		order.Counter,
		order.Signature,
		order.Parameters,
		order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return errors.Wrap(err, "failed to insert order")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderHash string) (*models.StoredOrder, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT order_hash, maker, token_contract, token_id, price_wei,
			start_time, end_time, counter, signature, parameters, status,
			created_at, updated_at
		FROM orders WHERE order_hash=$1
	`, orderHash)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to select order")
	}
	return order, nil
}

// ListByStatus returns rows in the given state, newest listings first.
func (s *Store) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.StoredOrder, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT order_hash, maker, token_contract, token_id, price_wei,
			start_time, end_time, counter, signature, parameters, status,
			created_at, updated_at
		FROM orders
		WHERE status=$1
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select orders")
	}
	defer rows.Close()

	var orders []*models.StoredOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, order)
	}
	return orders, errors.Wrap(rows.Err(), "failed to iterate orders")
}

// UpdateStatus transitions a row out of `active` into a terminal state. The
// update is conditional so terminal rows stay immutable; repeating a
// transition that already happened is reported as success (idempotent), a
// conflicting terminal state as ErrTerminal.
func (s *Store) UpdateStatus(ctx context.Context, orderHash string, status models.OrderStatus) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, updated_at=now()
		WHERE order_hash=$1 AND status=$3
	`, orderHash, status, models.OrderActive)
	if err != nil {
		return errors.Wrap(err, "failed to update order status")
	}
	if res.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetOrder(ctx, orderHash)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return errors.Wrapf(ErrTerminal, "order is already %s", current.Status)
}

func scanOrder(row pgx.Row) (*models.StoredOrder, error) {
	var order models.StoredOrder
	err := row.Scan(
		&order.OrderHash,
		&order.Maker,
		&order.TokenContract,
		&order.TokenID,
		&order.PriceWei,
		&order.StartTime,
		&order.EndTime,
		&order.Counter,
		&order.Signature,
		&order.Parameters,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
