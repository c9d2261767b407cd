package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	backorder "github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Get loads an order with its line items. UserID is the owner of the
// order's distributor.
func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT o.id, e.owner_id, o.distributor_id, o.order_cycle_id, o.state, o.revision, o.created_at, o.updated_at
		FROM orders o
		JOIN enterprises e ON e.id = o.distributor_id
		WHERE o.id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.DistributorID, &o.OrderCycleID, &o.State, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("order %s: %w", id, backorder.ErrNotFound)
		}
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT variant_id, quantity FROM line_items WHERE order_id = $1 ORDER BY variant_id`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.VariantID, &item.Quantity); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// InvoiceableQuantity sums the variant's line items over every invoiceable
// order of the distributor in the order cycle.
func (r *Repository) InvoiceableQuantity(ctx context.Context, scope backorder.Scope, variantID string) (int64, error) {
	states := make([]string, 0, len(domain.InvoiceableStates))
	for _, s := range domain.InvoiceableStates {
		states = append(states, string(s))
	}

	var qty int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(li.quantity), 0)
		FROM line_items li
		JOIN orders o ON o.id = li.order_id
		WHERE o.order_cycle_id = $1
		  AND o.distributor_id = $2
		  AND li.variant_id = $3
		  AND o.state = ANY($4)`,
		scope.OrderCycleID, scope.DistributorID, variantID, states).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("sum invoiceable quantity: %w", err)
	}
	return qty, nil
}
