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
)

const finalizeTrigger = "finalize"

type CompleteRequest struct {
	UserID        string
	DistributorID string
	OrderCycleID  string
	RemoteOrderID string
}

func (r CompleteRequest) Scope() domain.Scope {
	return domain.Scope{UserID: r.UserID, DistributorID: r.DistributorID, OrderCycleID: r.OrderCycleID}
}

// Finalizer settles a backorder against final demand when its order cycle
// closes and submits it to the remote system.
type Finalizer struct {
	log    *slog.Logger
	ports  Ports
	tracer trace.Tracer
}

func NewFinalizer(log *slog.Logger, ports Ports) *Finalizer {
	return &Finalizer{
		log:    log,
		ports:  ports,
		tracer: otel.Tracer("backorder-finalizer"),
	}
}

// Complete finalizes the backorder of one distributor in one order cycle.
// Any failure after the lifecycle guard is escalated to an operator and
// returned. A backorder another run already claimed yields
// ErrFinalizeInProgress, and a request naming the wrong remote order yields
// ErrLinkMismatch, both without escalation.
func (f *Finalizer) Complete(ctx context.Context, req CompleteRequest) error {
	ctx, span := f.tracer.Start(ctx, "CompleteBackorder", trace.WithAttributes(
		attribute.String("remote_order_id", req.RemoteOrderID),
		attribute.String("order_cycle_id", req.OrderCycleID),
	))
	defer span.End()

	scope := req.Scope()
	if err := f.ports.Links.BeginFinalize(ctx, scope, req.RemoteOrderID); err != nil {
		if errors.Is(err, domain.ErrFinalizeInProgress) || errors.Is(err, domain.ErrLinkMismatch) {
			f.log.Warn("backorder finalization skipped", "scope", scope.String(), "remote_order_id", req.RemoteOrderID, "err", err)
			return err
		}
		span.RecordError(err)
		return f.escalate(ctx, req, fmt.Errorf("begin finalize: %w", err))
	}

	if err := f.complete(ctx, scope, req.RemoteOrderID); err != nil {
		span.RecordError(err)
		if merr := f.ports.Links.MarkFinalizeFailed(context.WithoutCancel(ctx), scope, err.Error()); merr != nil {
			f.log.Error("mark finalize failed", "scope", scope.String(), "err", merr)
		}
		return f.escalate(ctx, req, err)
	}
	return nil
}

func (f *Finalizer) complete(ctx context.Context, scope domain.Scope, remoteOrderID string) error {
	broker, orders := f.ports.Remote.ForUser(scope.UserID)
	b, err := orders.FindByID(ctx, remoteOrderID)
	if err != nil {
		return fmt.Errorf("load backorder %s: %w", remoteOrderID, err)
	}
	if len(b.Lines) == 0 {
		f.log.Info("backorder has no lines, nothing to finalize", "backorder_id", b.ID)
		return f.ports.Links.MarkFinalized(ctx, scope)
	}

	variants, err := f.ports.Variants.LinkedVariants(ctx, scope)
	if err != nil {
		return fmt.Errorf("load linked variants: %w", err)
	}
	pass := b.PassKey(finalizeTrigger)
	journal, err := f.ports.Ledger.Journal(ctx, pass)
	if err != nil {
		return fmt.Errorf("load pass %s: %w", pass, err)
	}

	for _, line := range b.Lines {
		v, factor, ok, err := linkedVariant(ctx, broker, variants, line)
		if err != nil {
			return err
		}
		if !ok {
			// Deleted variant. The line is submitted as ordered.
			f.log.Warn("no linked variant for backorder line, kept unchanged",
				"backorder_id", b.ID, "offer_id", line.OfferID, "product_id", line.ProductID, "packs", line.Quantity)
			continue
		}
		if err := f.settleLine(ctx, scope, pass, line, v, factor, journal); err != nil {
			return err
		}
	}
	b.Prune()

	if err := orders.Complete(ctx, b); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			// A retry loads the newer version under a new pass key.
			if rerr := f.ports.Ledger.RevertPass(ctx, pass); rerr != nil {
				return errors.Join(fmt.Errorf("submit backorder %s: %w", b.ID, err), fmt.Errorf("revert pass %s: %w", pass, rerr))
			}
			f.log.Warn("backorder changed remotely, release reverted", "pass", pass)
		}
		return fmt.Errorf("submit backorder %s: %w", b.ID, err)
	}
	if err := f.ports.Links.MarkFinalized(ctx, scope); err != nil {
		return fmt.Errorf("unlink backorder %s: %w", b.ID, err)
	}
	f.log.Info("backorder finalized", "backorder_id", b.ID, "lines", len(b.Lines), "packs", b.TotalPacks())
	return nil
}

func (f *Finalizer) settleLine(ctx context.Context, scope domain.Scope, pass string, line *domain.Line, v inventory.RetailVariant, factor domain.Factor, journal inventory.Journal) error {
	if !v.OnDemand {
		qty, err := f.ports.Demand.InvoiceableQuantity(ctx, scope, v.ID)
		if err != nil {
			return fmt.Errorf("invoiceable quantity of variant %s: %w", v.ID, err)
		}
		line.Quantity = factor.WholesalePacksNeeded(qty)
		return nil
	}

	plan := domain.PlanRelease(onHandBefore(v, journal), line.Quantity, factor)
	adj, err := applyOnce(ctx, f.log, f.ports.Ledger, journal, inventory.Adjustment{
		Pass:      pass,
		VariantID: v.ID,
		Key:       "release:" + line.OfferID,
		Delta:     plan.StockDelta,
		Packs:     plan.LineDelta(),
	})
	if err != nil {
		return err
	}
	line.Quantity += adj.Packs
	return nil
}

func (f *Finalizer) escalate(ctx context.Context, req CompleteRequest, cause error) error {
	incident := domain.Incident{
		Scope:         req.Scope(),
		RemoteOrderID: req.RemoteOrderID,
		Reason:        cause.Error(),
	}
	f.log.Error("backorder finalization failed",
		"distributor_id", req.DistributorID,
		"order_cycle_id", req.OrderCycleID,
		"remote_order_id", req.RemoteOrderID,
		"err", cause,
	)
	if err := f.ports.Notifier.BackorderIncomplete(context.WithoutCancel(ctx), incident); err != nil {
		f.log.Error("notify incomplete backorder", "remote_order_id", req.RemoteOrderID, "err", err)
	}
	return fmt.Errorf("complete backorder %s: %w", req.RemoteOrderID, cause)
}
