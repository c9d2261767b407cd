package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	inventory "github.com/dmehra2102/hub-backorders/internal/inventory/domain"
	order "github.com/dmehra2102/hub-backorders/internal/order/domain"
)

// Ports bundles the collaborators shared by the reconciler and finalizer.
type Ports struct {
	Variants VariantDirectory
	Remote   RemoteClients
	Ledger   StockLedger
	Demand   DemandCounter
	Links    BackorderLinks
	Lock     OrderLock
	Notifier Notifier
}

// Reconciler keeps the wholesale backorder of an order cycle in step with
// local demand each time an order changes.
type Reconciler struct {
	log    *slog.Logger
	ports  Ports
	tracer trace.Tracer
}

func NewReconciler(log *slog.Logger, ports Ports) *Reconciler {
	return &Reconciler{
		log:    log,
		ports:  ports,
		tracer: otel.Tracer("backorder-reconciler"),
	}
}

func ScopeOf(o order.Order) domain.Scope {
	return domain.Scope{
		UserID:        o.UserID,
		DistributorID: o.DistributorID,
		OrderCycleID:  o.OrderCycleID,
	}
}

// Amend recomputes every linked variant's backorder line after o was
// created, adjusted or cancelled. A failed pass is not retried here: its
// stock adjustments are journaled under the pass key, so re-running Amend
// for the same order revision picks up where the failed pass stopped.
func (r *Reconciler) Amend(ctx context.Context, o order.Order) error {
	ctx, span := r.tracer.Start(ctx, "AmendBackorder", trace.WithAttributes(
		attribute.String("order_id", o.ID),
		attribute.String("order_cycle_id", o.OrderCycleID),
	))
	defer span.End()

	scope := ScopeOf(o)
	variants, err := r.ports.Variants.LinkedVariants(ctx, scope)
	if err != nil {
		return fmt.Errorf("load linked variants: %w", err)
	}
	if len(variants) == 0 {
		r.log.Debug("no linked variants, nothing to amend", "order_id", o.ID, "scope", scope.String())
		return nil
	}

	lockIDs := append(o.VariantIDs(), variants.IDs()...)
	err = r.ports.Lock.WithLock(ctx, o.ID, lockIDs, func(ctx context.Context) error {
		return r.amend(ctx, o, scope)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *Reconciler) amend(ctx context.Context, o order.Order, scope domain.Scope) error {
	// Stock may have moved while waiting for the lock.
	variants, err := r.ports.Variants.LinkedVariants(ctx, scope)
	if err != nil {
		return fmt.Errorf("reload linked variants: %w", err)
	}
	if len(variants) == 0 {
		return nil
	}

	broker, orders := r.ports.Remote.ForUser(scope.UserID)
	backorder, linked, err := r.openBackorder(ctx, scope, orders)
	if err != nil {
		return err
	}

	pass := backorder.PassKey(o.Trigger())
	journal, err := r.ports.Ledger.Journal(ctx, pass)
	if err != nil {
		return fmt.Errorf("load pass %s: %w", pass, err)
	}

	touched := make(map[*domain.Line]bool, len(variants))
	for _, v := range variants {
		line, err := r.updateLine(ctx, scope, pass, broker, backorder, v, journal)
		if err != nil {
			return err
		}
		touched[line] = true
	}

	if err := r.cancelStaleLines(ctx, scope, pass, broker, backorder, journal, touched); err != nil {
		return err
	}
	backorder.Prune()

	if backorder.IsDraft() && len(backorder.Lines) == 0 {
		r.log.Info("draft backorder empty, not sent", "order_id", o.ID, "scope", scope.String())
		return nil
	}

	if err := orders.Send(ctx, backorder); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			if rerr := r.ports.Ledger.RevertPass(ctx, pass); rerr != nil {
				return errors.Join(fmt.Errorf("send backorder: %w", err), fmt.Errorf("revert pass %s: %w", pass, rerr))
			}
			r.log.Warn("backorder changed remotely, pass reverted", "pass", pass)
		}
		return fmt.Errorf("send backorder: %w", err)
	}
	if !linked {
		if err := r.ports.Links.Link(ctx, scope, backorder.ID); err != nil {
			return fmt.Errorf("link backorder %s: %w", backorder.ID, err)
		}
	}

	r.log.Info("backorder amended",
		"order_id", o.ID,
		"backorder_id", backorder.ID,
		"version", backorder.Version,
		"lines", len(backorder.Lines),
		"packs", backorder.TotalPacks(),
	)
	return nil
}

// openBackorder returns the linked backorder, or the remote's open order
// for the scope when none is linked yet. The bool reports an existing link.
func (r *Reconciler) openBackorder(ctx context.Context, scope domain.Scope, orders RemoteOrders) (*domain.Backorder, bool, error) {
	link, err := r.ports.Links.Find(ctx, scope)
	if errors.Is(err, domain.ErrNotLinked) {
		b, err := orders.FindOpen(ctx, scope)
		if err != nil {
			return nil, false, fmt.Errorf("find open backorder: %w", err)
		}
		return b, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find backorder link: %w", err)
	}
	if !link.State.Amendable() {
		return nil, false, fmt.Errorf("%w: %s is %s", domain.ErrBackorderClosed, scope, link.State)
	}
	b, err := orders.FindByID(ctx, link.RemoteOrderID)
	if err != nil {
		return nil, false, fmt.Errorf("load backorder %s: %w", link.RemoteOrderID, err)
	}
	return b, true, nil
}

func (r *Reconciler) updateLine(ctx context.Context, scope domain.Scope, pass string, broker OfferBroker, b *domain.Backorder, v inventory.RetailVariant, journal inventory.Journal) (*domain.Line, error) {
	offer, err := broker.BestOffer(ctx, v.Link)
	if err != nil {
		return nil, fmt.Errorf("best offer for variant %s: %w", v.ID, err)
	}
	line := b.FindOrBuildLine(offer)

	if !v.OnDemand {
		qty, err := r.ports.Demand.InvoiceableQuantity(ctx, scope, v.ID)
		if err != nil {
			return nil, fmt.Errorf("invoiceable quantity of variant %s: %w", v.ID, err)
		}
		line.Quantity = offer.Factor.WholesalePacksNeeded(qty)
		return line, nil
	}

	plan := domain.PlanOnDemand(onHandBefore(v, journal), line.Quantity, offer.Factor)
	adj, err := r.apply(ctx, journal, inventory.Adjustment{
		Pass:      pass,
		VariantID: v.ID,
		Key:       "line:" + offer.ID,
		Delta:     plan.StockDelta,
		Packs:     plan.LineDelta(),
	})
	if err != nil {
		return nil, err
	}
	line.Quantity += adj.Packs
	return line, nil
}

// cancelStaleLines zeroes every line no current variant asked for and takes
// back the stock those packs had credited.
func (r *Reconciler) cancelStaleLines(ctx context.Context, scope domain.Scope, pass string, broker OfferBroker, b *domain.Backorder, journal inventory.Journal, touched map[*domain.Line]bool) error {
	var managed inventory.Variants
	loaded := false
	for _, line := range b.Lines {
		if touched[line] || line.Quantity == 0 {
			continue
		}
		if !loaded {
			var err error
			if managed, err = r.ports.Variants.ManagedLinkedVariants(ctx, scope); err != nil {
				return fmt.Errorf("load managed variants: %w", err)
			}
			loaded = true
		}
		v, factor, ok, err := linkedVariant(ctx, broker, managed, line)
		if err != nil {
			return err
		}
		if ok && v.OnDemand {
			_, err := r.apply(ctx, journal, inventory.Adjustment{
				Pass:      pass,
				VariantID: v.ID,
				Key:       "stale:" + line.OfferID,
				Delta:     -factor.RetailUnitsFor(line.Quantity),
				Packs:     -line.Quantity,
			})
			if err != nil {
				return err
			}
		}
		r.log.Info("stale backorder line cancelled", "offer_id", line.OfferID, "packs", line.Quantity)
		line.Quantity = 0
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, journal inventory.Journal, adj inventory.Adjustment) (inventory.Adjustment, error) {
	return applyOnce(ctx, r.log, r.ports.Ledger, journal, adj)
}
