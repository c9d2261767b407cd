package application

import (
	"context"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	inventory "github.com/dmehra2102/hub-backorders/internal/inventory/domain"
)

type OfferBroker interface {
	BestOffer(ctx context.Context, retailLink string) (domain.Offer, error)
	WholesaleToRetail(ctx context.Context, wholesaleProductID string) (domain.Transformation, error)
}

// RemoteOrders talks to the wholesale order endpoint. Send is a
// compare-and-set on Backorder.Version; on success it stores the remote id
// and the new version on the backorder.
type RemoteOrders interface {
	FindOpen(ctx context.Context, scope domain.Scope) (*domain.Backorder, error)
	FindByID(ctx context.Context, id string) (*domain.Backorder, error)
	Send(ctx context.Context, b *domain.Backorder) error
	Complete(ctx context.Context, b *domain.Backorder) error
}

// RemoteClients hands out collaborators acting with a user's credentials.
type RemoteClients interface {
	ForUser(userID string) (OfferBroker, RemoteOrders)
}

type OrderLock interface {
	WithLock(ctx context.Context, orderID string, variantIDs []string, fn func(ctx context.Context) error) error
}

type VariantDirectory interface {
	// LinkedVariants are distributed by the scope's distributor in its
	// order cycle and linked to a remote product.
	LinkedVariants(ctx context.Context, scope domain.Scope) (inventory.Variants, error)
	// ManagedLinkedVariants are the linked variants the scope's user manages.
	ManagedLinkedVariants(ctx context.Context, scope domain.Scope) (inventory.Variants, error)
}

type StockLedger interface {
	AdjustOnHand(ctx context.Context, adj inventory.Adjustment) error
	// Journal lists the adjustments already applied by a pass.
	Journal(ctx context.Context, pass string) (inventory.Journal, error)
	RevertPass(ctx context.Context, pass string) error
}

type DemandCounter interface {
	InvoiceableQuantity(ctx context.Context, scope domain.Scope, variantID string) (int64, error)
}

type BackorderLinks interface {
	Find(ctx context.Context, scope domain.Scope) (domain.Link, error)
	Link(ctx context.Context, scope domain.Scope, remoteOrderID string) error
	// BeginFinalize claims the link for one finalization run. It fails with
	// ErrFinalizeInProgress while another run holds an unexpired claim and
	// with ErrLinkMismatch when the scope is linked to another remote order.
	BeginFinalize(ctx context.Context, scope domain.Scope, remoteOrderID string) error
	MarkFinalized(ctx context.Context, scope domain.Scope) error
	MarkFinalizeFailed(ctx context.Context, scope domain.Scope, reason string) error
}

type Notifier interface {
	BackorderIncomplete(ctx context.Context, incident domain.Incident) error
}
