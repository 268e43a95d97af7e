package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

var orderColumns = []string{
	"id",
	"account_id",
	"status",
	"lines",
	"tax_rate::text",
	"subtotal_excl::text",
	"subtotal_incl::text",
	"delivery_fee::text",
	"total::text",
	"payment_ref",
	"expires_at",
	"created_at",
	"updated_at",
}

// CreateOrder inserts an order. A second pending order for the same account
// violates the partial unique index and is reported as a conflict.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	created := o.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	stmt, args, err := s.builder.Insert("orders").
		Columns("id", "account_id", "status", "lines", "tax_rate", "subtotal_excl", "subtotal_incl",
			"delivery_fee", "total", "payment_ref", "expires_at", "created_at", "updated_at").
		Values(o.ID, o.AccountID, string(o.Status), lines, o.TaxRate.String(), o.SubtotalExcl.String(),
			o.SubtotalIncl.String(), o.DeliveryFee.String(), o.Total.String(), o.PaymentRef,
			o.ExpiresAt, created, created).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "a pending order already exists"}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.selectOrder(ctx, id, false)
}

// FindPendingOrder returns the pending order of an account, or nil.
func (s *Store) FindPendingOrder(ctx context.Context, accountID string) (*domain.Order, error) {
	stmt, args, err := s.builder.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"account_id": accountID, "status": string(domain.OrderPending)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select pending order sql: %w", err)
	}

	o, err := scanOrder(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

func (s *Store) selectOrder(ctx context.Context, id string, forUpdate bool) (*domain.Order, error) {
	query := s.builder.Select(orderColumns...).From("orders").Where(squirrel.Eq{"id": id})
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select order sql: %w", err)
	}

	o, err := scanOrder(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "order", ID: id}
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

// UpdateOrder locks the order, applies mutate and persists the result.
func (s *Store) UpdateOrder(ctx context.Context, id string, mutate func(*domain.Order) error) (*domain.Order, error) {
	var out *domain.Order
	err := s.inTx(ctx, func(tx *Store) error {
		o, err := tx.mutateOrder(ctx, id, mutate)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) mutateOrder(ctx context.Context, id string, mutate func(*domain.Order) error) (*domain.Order, error) {
	current, err := s.selectOrder(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	current.UpdatedAt = s.now()

	lines, err := json.Marshal(current.Lines)
	if err != nil {
		return nil, fmt.Errorf("encode order lines: %w", err)
	}

	stmt, args, err := s.builder.Update("orders").
		SetMap(map[string]any{
			"status":      string(current.Status),
			"lines":       lines,
			"payment_ref": current.PaymentRef,
			"updated_at":  current.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update order sql: %w", err)
	}
	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return current, nil
}

// ApplyPaymentEvent records eventID and applies mutate in the same
// transaction. A replayed event id leaves the order untouched.
func (s *Store) ApplyPaymentEvent(ctx context.Context, eventID, orderID string, mutate func(*domain.Order) error) (bool, *domain.Order, error) {
	var (
		applied bool
		out     *domain.Order
	)
	err := s.inTx(ctx, func(tx *Store) error {
		// Lock the order first so concurrent deliveries of different events
		// for the same order serialize.
		if _, err := tx.selectOrder(ctx, orderID, true); err != nil {
			return err
		}

		stmt, args, err := tx.builder.Insert("processed_payment_events").
			Columns("event_id", "order_id", "processed_at").
			Values(eventID, orderID, tx.now()).
			Suffix("ON CONFLICT (event_id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert payment event sql: %w", err)
		}
		tag, err := tx.exec.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("insert payment event: %w", err)
		}

		if tag.RowsAffected() == 0 {
			out, err = tx.selectOrder(ctx, orderID, false)
			return err
		}

		out, err = tx.mutateOrder(ctx, orderID, mutate)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return applied, out, nil
}

// ListExpiredPendingOrders returns pending orders whose expiry is before now.
func (s *Store) ListExpiredPendingOrders(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	stmt, args, err := s.builder.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"status": string(domain.OrderPending)}).
		Where(squirrel.Lt{"expires_at": now}).
		OrderBy("expires_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select expired orders sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query expired orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                             domain.Order
		status                                        string
		lines                                         []byte
		taxRate, subExcl, subIncl, deliveryFee, total string
	)
	if err := row.Scan(
		&o.ID,
		&o.AccountID,
		&status,
		&lines,
		&taxRate,
		&subExcl,
		&subIncl,
		&deliveryFee,
		&total,
		&o.PaymentRef,
		&o.ExpiresAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("decode order lines: %w", err)
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{taxRate, &o.TaxRate},
		{subExcl, &o.SubtotalExcl},
		{subIncl, &o.SubtotalIncl},
		{deliveryFee, &o.DeliveryFee},
		{total, &o.Total},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		*a.dst = v
	}
	return &o, nil
}
