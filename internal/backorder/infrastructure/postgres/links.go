package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/pkg/tracing"
)

const aggregateType = "backorder"

// Links stores which remote backorder belongs to an order cycle's outgoing
// exchange and where it is in its lifecycle. Every state change is a
// compare-and-set on the current state.
type Links struct {
	log   *slog.Logger
	pool  *pgxpool.Pool
	lease time.Duration
}

// NewLinks returns the link store. A finalizing claim older than lease is
// taken to belong to a run that died and may be claimed again.
func NewLinks(log *slog.Logger, pool *pgxpool.Pool, lease time.Duration) *Links {
	return &Links{log: log, pool: pool, lease: lease}
}

func (l *Links) Find(ctx context.Context, scope domain.Scope) (domain.Link, error) {
	link := domain.Link{Scope: scope}
	var lastError *string
	err := l.pool.QueryRow(ctx, `
		SELECT user_id, remote_order_id, state, last_error, updated_at, unlinked_at
		FROM backorder_links
		WHERE distributor_id = $1 AND order_cycle_id = $2`,
		scope.DistributorID, scope.OrderCycleID).
		Scan(&link.Scope.UserID, &link.RemoteOrderID, &link.State, &lastError, &link.UpdatedAt, &link.UnlinkedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Link{}, domain.ErrNotLinked
		}
		return domain.Link{}, err
	}
	if lastError != nil {
		link.LastError = *lastError
	}
	return link, nil
}

func (l *Links) Link(ctx context.Context, scope domain.Scope, remoteOrderID string) error {
	return l.withOutbox(ctx, scope, domain.EventBackorderOpened, func(tx pgx.Tx) (any, error) {
		ct, err := tx.Exec(ctx, `
			INSERT INTO backorder_links (distributor_id, order_cycle_id, user_id, remote_order_id, state, updated_at)
			VALUES ($1,$2,$3,$4,$5,now())
			ON CONFLICT (distributor_id, order_cycle_id) DO UPDATE
			SET remote_order_id = EXCLUDED.remote_order_id, updated_at = now()
			WHERE backorder_links.state = $5`,
			scope.DistributorID, scope.OrderCycleID, scope.UserID, remoteOrderID, string(domain.StateOpen))
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrBackorderClosed, scope)
		}
		return domain.BackorderOpened{
			UserID:        scope.UserID,
			DistributorID: scope.DistributorID,
			OrderCycleID:  scope.OrderCycleID,
			RemoteOrderID: remoteOrderID,
		}, nil
	})
}

// BeginFinalize claims the backorder for finalization. A scope with no link
// yet is claimed with the given remote order id; a linked scope only for the
// remote order it is linked to.
func (l *Links) BeginFinalize(ctx context.Context, scope domain.Scope, remoteOrderID string) error {
	ct, err := l.pool.Exec(ctx, `
		INSERT INTO backorder_links (distributor_id, order_cycle_id, user_id, remote_order_id, state, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (distributor_id, order_cycle_id) DO UPDATE
		SET state = EXCLUDED.state, last_error = NULL, updated_at = now()
		WHERE backorder_links.remote_order_id = EXCLUDED.remote_order_id
		  AND (backorder_links.state = ANY($6)
		       OR (backorder_links.state = $5 AND backorder_links.updated_at < now() - make_interval(secs => $7)))`,
		scope.DistributorID, scope.OrderCycleID, scope.UserID, remoteOrderID, string(domain.StateFinalizing),
		states(domain.AllowedFrom(domain.StateFinalizing)), l.lease.Seconds())
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	link, err := l.Find(ctx, scope)
	if err != nil {
		return err
	}
	if link.RemoteOrderID != remoteOrderID {
		return fmt.Errorf("%w: %s is linked to %s, not %s", domain.ErrLinkMismatch, scope, link.RemoteOrderID, remoteOrderID)
	}
	return fmt.Errorf("%w: %s", domain.ErrFinalizeInProgress, scope)
}

func (l *Links) MarkFinalized(ctx context.Context, scope domain.Scope) error {
	return l.withOutbox(ctx, scope, domain.EventBackorderCompleted, func(tx pgx.Tx) (any, error) {
		remoteOrderID, err := transition(ctx, tx, scope, domain.StateFinalized, nil)
		if err != nil {
			return nil, err
		}
		return domain.BackorderCompleted{
			DistributorID: scope.DistributorID,
			OrderCycleID:  scope.OrderCycleID,
			RemoteOrderID: remoteOrderID,
		}, nil
	})
}

func (l *Links) MarkFinalizeFailed(ctx context.Context, scope domain.Scope, reason string) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := transition(ctx, tx, scope, domain.StateFinalizeFailed, &reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// transition moves the link to `to` and returns its remote order id.
func transition(ctx context.Context, tx pgx.Tx, scope domain.Scope, to domain.State, lastError *string) (string, error) {
	var remoteOrderID string
	err := tx.QueryRow(ctx, `
		UPDATE backorder_links
		SET state = $3,
		    last_error = $4,
		    unlinked_at = CASE WHEN $3 = 'finalized' THEN now() ELSE unlinked_at END,
		    updated_at = now()
		WHERE distributor_id = $1 AND order_cycle_id = $2 AND state = ANY($5)
		RETURNING remote_order_id`,
		scope.DistributorID, scope.OrderCycleID, string(to), lastError, states(domain.AllowedFrom(to))).Scan(&remoteOrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("backorder %s cannot move to %s", scope, to)
	}
	return remoteOrderID, err
}

// withOutbox runs fn and records the event it returns in the same transaction.
func (l *Links) withOutbox(ctx context.Context, scope domain.Scope, eventType string, fn func(pgx.Tx) (any, error)) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	event, err := fn(tx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, scope.String(), eventType, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte) error {
	headers := map[string]string{"source": "backorder-service", "event_id": uuid.NewString()}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		aggregateType, aggregateID, eventType, payload, headers, tracing.Traceparent(ctx))
	return err
}

func states(ss []domain.State) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, string(s))
	}
	return out
}
