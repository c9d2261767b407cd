package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	inventory "github.com/dmehra2102/hub-backorders/internal/inventory/domain"
)

// linkedVariant resolves the retail variant a backorder line is ordered for.
// A variant sold as the retail transformation wins; otherwise the wholesale
// product may be linked directly and is then counted one to one.
func linkedVariant(ctx context.Context, broker OfferBroker, variants inventory.Variants, line *domain.Line) (inventory.RetailVariant, domain.Factor, bool, error) {
	t, err := broker.WholesaleToRetail(ctx, line.ProductID)
	if err != nil {
		return inventory.RetailVariant{}, domain.Factor{}, false, fmt.Errorf("resolve transformation of %s: %w", line.ProductID, err)
	}
	if v, ok := variants.LinkedTo(t.RetailProductID); ok {
		return v, t.Factor, true, nil
	}
	if v, ok := variants.LinkedTo(line.ProductID); ok {
		return v, domain.Unit, true, nil
	}
	return inventory.RetailVariant{}, domain.Factor{}, false, nil
}

// onHandBefore rewinds a variant's counter to where it stood before the
// current pass touched it.
func onHandBefore(v inventory.RetailVariant, journal inventory.Journal) int64 {
	return v.OnHand - journal.Delta(v.ID)
}

// applyOnce journals adj unless the pass already decided on its key, and
// returns the adjustment in effect. A replayed pass keeps its first
// decision even when stock moved in between.
func applyOnce(ctx context.Context, log *slog.Logger, ledger StockLedger, journal inventory.Journal, adj inventory.Adjustment) (inventory.Adjustment, error) {
	if prior, ok := journal.Find(adj.VariantID, adj.Key); ok {
		if prior.Delta != adj.Delta || prior.Packs != adj.Packs {
			log.Info("replaying journaled stock decision", "variant_id", adj.VariantID, "key", adj.Key, "pass", adj.Pass,
				"journaled", prior.Delta, "recomputed", adj.Delta)
		}
		return prior, nil
	}
	if adj.Delta == 0 && adj.Packs == 0 {
		return adj, nil
	}
	if err := ledger.AdjustOnHand(ctx, adj); err != nil {
		return inventory.Adjustment{}, fmt.Errorf("adjust stock of variant %s: %w", adj.VariantID, err)
	}
	log.Info("stock adjusted", "variant_id", adj.VariantID, "delta", adj.Delta, "pass", adj.Pass)
	return adj, nil
}
