package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	backorder "github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/internal/inventory/domain"
)

// Directory discovers the variants linked to remote products.
type Directory struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewDirectory(log *slog.Logger, pool *pgxpool.Pool) *Directory {
	return &Directory{log: log, pool: pool}
}

func (d *Directory) LinkedVariants(ctx context.Context, scope backorder.Scope) (domain.Variants, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT DISTINCT ON (v.id) v.id, v.product_id, sl.semantic_id, v.on_demand, v.on_hand
		FROM exchange_variants ev
		JOIN variants v        ON v.id = ev.variant_id
		JOIN semantic_links sl ON sl.variant_id = v.id
		WHERE ev.order_cycle_id = $1
		  AND ev.distributor_id = $2
		  AND v.deleted_at IS NULL
		ORDER BY v.id, sl.id`, scope.OrderCycleID, scope.DistributorID)
	if err != nil {
		return nil, err
	}
	return scanVariants(rows)
}

func (d *Directory) ManagedLinkedVariants(ctx context.Context, scope backorder.Scope) (domain.Variants, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT DISTINCT ON (v.id) v.id, v.product_id, sl.semantic_id, v.on_demand, v.on_hand
		FROM variants v
		JOIN semantic_links sl      ON sl.variant_id = v.id
		JOIN enterprise_managers em ON em.enterprise_id = v.supplier_id
		WHERE em.user_id = $1
		  AND v.deleted_at IS NULL
		ORDER BY v.id, sl.id`, scope.UserID)
	if err != nil {
		return nil, err
	}
	return scanVariants(rows)
}

func scanVariants(rows pgx.Rows) (domain.Variants, error) {
	defer rows.Close()
	var out domain.Variants
	for rows.Next() {
		var v domain.RetailVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Link, &v.OnDemand, &v.OnHand); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
