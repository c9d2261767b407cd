package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
)

// Notifier queues a BackorderIncomplete event for the mailer through the outbox.
type Notifier struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewNotifier(log *slog.Logger, pool *pgxpool.Pool) *Notifier {
	return &Notifier{log: log, pool: pool}
}

func (n *Notifier) BackorderIncomplete(ctx context.Context, incident domain.Incident) error {
	payload, err := json.Marshal(domain.BackorderIncomplete{
		UserID:        incident.Scope.UserID,
		DistributorID: incident.Scope.DistributorID,
		OrderCycleID:  incident.Scope.OrderCycleID,
		RemoteOrderID: incident.RemoteOrderID,
		Reason:        incident.Reason,
	})
	if err != nil {
		return err
	}
	tx, err := n.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := insertOutbox(ctx, tx, incident.Scope.String(), domain.EventBackorderIncomplete, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	n.log.Warn("operator notified of incomplete backorder",
		"distributor_id", incident.Scope.DistributorID,
		"order_cycle_id", incident.Scope.OrderCycleID,
		"remote_order_id", incident.RemoteOrderID,
	)
	return nil
}
