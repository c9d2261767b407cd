package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/hub-backorders/internal/inventory/domain"
)

// Ledger adjusts variants.on_hand by deltas and journals every adjustment
// in stock_adjustments so a pass can be replayed or reverted.
type Ledger struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewLedger(log *slog.Logger, pool *pgxpool.Pool) *Ledger {
	return &Ledger{log: log, pool: pool}
}

// AdjustOnHand applies adj once. Re-applying the same key is a no-op as
// long as the delta matches what was journaled.
func (l *Ledger) AdjustOnHand(ctx context.Context, adj domain.Adjustment) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `INSERT INTO stock_adjustments (pass_id, variant_id, key, delta, packs, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (pass_id, variant_id, key) DO NOTHING`,
		adj.Pass, adj.VariantID, adj.Key, adj.Delta, adj.Packs)
	if err != nil {
		return fmt.Errorf("journal adjustment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var delta, packs int64
		err := tx.QueryRow(ctx, `SELECT delta, packs FROM stock_adjustments WHERE pass_id = $1 AND variant_id = $2 AND key = $3`,
			adj.Pass, adj.VariantID, adj.Key).Scan(&delta, &packs)
		if err != nil {
			return fmt.Errorf("load journaled adjustment: %w", err)
		}
		if delta != adj.Delta || packs != adj.Packs {
			return fmt.Errorf("%w: %s %s/%s has %d, got %d", domain.ErrAdjustmentMismatch, adj.Pass, adj.VariantID, adj.Key, delta, adj.Delta)
		}
		l.log.Info("stock adjustment already applied", "pass", adj.Pass, "variant_id", adj.VariantID, "key", adj.Key)
		return nil
	}

	ct, err = tx.Exec(ctx, `UPDATE variants SET on_hand = on_hand + $2, updated_at = now() WHERE id = $1`, adj.VariantID, adj.Delta)
	if err != nil {
		return fmt.Errorf("update on hand: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("variant %s not found", adj.VariantID)
	}
	return tx.Commit(ctx)
}

func (l *Ledger) Journal(ctx context.Context, pass string) (domain.Journal, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT pass_id, variant_id, key, delta, packs
		FROM stock_adjustments
		WHERE pass_id = $1
		ORDER BY created_at, variant_id, key`, pass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var journal domain.Journal
	for rows.Next() {
		var a domain.Adjustment
		if err := rows.Scan(&a.Pass, &a.VariantID, &a.Key, &a.Delta, &a.Packs); err != nil {
			return nil, err
		}
		journal = append(journal, a)
	}
	return journal, rows.Err()
}

// RevertPass undoes every adjustment of a pass and forgets it, so running
// the same pass again applies it afresh.
func (l *Ledger) RevertPass(ctx context.Context, pass string) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `DELETE FROM stock_adjustments WHERE pass_id = $1 RETURNING variant_id, delta`, pass)
	if err != nil {
		return err
	}
	deltas := map[string]int64{}
	for rows.Next() {
		var variantID string
		var delta int64
		if err := rows.Scan(&variantID, &delta); err != nil {
			rows.Close()
			return err
		}
		deltas[variantID] += delta
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for variantID, delta := range deltas {
		batch.Queue(`UPDATE variants SET on_hand = on_hand - $2, updated_at = now() WHERE id = $1`, variantID, delta)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	l.log.Info("stock pass reverted", "pass", pass, "variants", len(deltas))
	return tx.Commit(ctx)
}
