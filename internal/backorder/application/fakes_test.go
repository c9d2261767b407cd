package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	inventory "github.com/dmehra2102/hub-backorders/internal/inventory/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stock is the fake StockLedger and also the source of on-hand values for
// the fake variant directory.
type stock struct {
	mu      sync.Mutex
	onHand  map[string]int64
	journal map[string][]inventory.Adjustment
	calls   int
	failOn  int // fail the n-th AdjustOnHand call when > 0
}

func newStock() *stock {
	return &stock{onHand: map[string]int64{}, journal: map[string][]inventory.Adjustment{}}
}

func (s *stock) AdjustOnHand(_ context.Context, adj inventory.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn > 0 && s.calls == s.failOn {
		return fmt.Errorf("ledger write: %w", io.ErrUnexpectedEOF)
	}
	if prior, ok := inventory.Journal(s.journal[adj.Pass]).Find(adj.VariantID, adj.Key); ok {
		if prior != adj {
			return inventory.ErrAdjustmentMismatch
		}
		return nil
	}
	s.journal[adj.Pass] = append(s.journal[adj.Pass], adj)
	s.onHand[adj.VariantID] += adj.Delta
	return nil
}

func (s *stock) Journal(_ context.Context, pass string) (inventory.Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(inventory.Journal(nil), s.journal[pass]...), nil
}

func (s *stock) RevertPass(_ context.Context, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, adj := range s.journal[pass] {
		s.onHand[adj.VariantID] -= adj.Delta
	}
	delete(s.journal, pass)
	return nil
}

// checkout sells qty units of a variant outside any backorder pass.
func (s *stock) checkout(variantID string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHand[variantID] -= qty
}

type variantDef struct {
	id          string
	link        string
	onDemand    bool
	distributed bool
	managed     bool
}

type directory struct {
	stock *stock
	defs  []*variantDef
}

func (d *directory) add(def *variantDef, onHand int64) *variantDef {
	d.defs = append(d.defs, def)
	d.stock.onHand[def.id] = onHand
	return def
}

func (d *directory) snapshot(keep func(*variantDef) bool) inventory.Variants {
	d.stock.mu.Lock()
	defer d.stock.mu.Unlock()
	var out inventory.Variants
	for _, def := range d.defs {
		if keep(def) {
			out = append(out, inventory.RetailVariant{
				ID:       def.id,
				Link:     def.link,
				OnDemand: def.onDemand,
				OnHand:   d.stock.onHand[def.id],
			})
		}
	}
	return out
}

func (d *directory) LinkedVariants(context.Context, domain.Scope) (inventory.Variants, error) {
	return d.snapshot(func(v *variantDef) bool { return v.distributed }), nil
}

func (d *directory) ManagedLinkedVariants(context.Context, domain.Scope) (inventory.Variants, error) {
	return d.snapshot(func(v *variantDef) bool { return v.managed }), nil
}

// remote fakes both the offer broker and the wholesale order endpoint.
type remote struct {
	offers          map[string]domain.Offer
	transformations map[string]domain.Transformation
	orders          map[string]*domain.Backorder
	nextID          int
	sends           int
	completed       []*domain.Backorder
	sendErr         error
	completeErr     error
	findErr         error
}

func newRemote() *remote {
	return &remote{
		offers:          map[string]domain.Offer{},
		transformations: map[string]domain.Transformation{},
		orders:          map[string]*domain.Backorder{},
	}
}

// product registers a retail link sourced from a wholesale product.
func (r *remote) product(retailLink, wholesaleID string, factor int64) domain.Offer {
	offer := domain.Offer{ID: "offer-" + wholesaleID, ProductID: wholesaleID, Factor: domain.FactorOf(factor)}
	r.offers[retailLink] = offer
	r.transformations[wholesaleID] = domain.Transformation{
		WholesaleProductID: wholesaleID,
		RetailProductID:    retailLink,
		Factor:             domain.FactorOf(factor),
	}
	return offer
}

func (r *remote) ForUser(string) (OfferBroker, RemoteOrders) { return r, r }

func (r *remote) BestOffer(_ context.Context, link string) (domain.Offer, error) {
	o, ok := r.offers[link]
	if !ok {
		return domain.Offer{}, fmt.Errorf("offer for %s: %w", link, domain.ErrNotFound)
	}
	return o, nil
}

func (r *remote) WholesaleToRetail(_ context.Context, id string) (domain.Transformation, error) {
	if t, ok := r.transformations[id]; ok {
		return t, nil
	}
	return domain.Identity(id), nil
}

func (r *remote) FindOpen(_ context.Context, scope domain.Scope) (*domain.Backorder, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return domain.NewDraft(scope), nil
}

func (r *remote) FindByID(_ context.Context, id string) (*domain.Backorder, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	b, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return clone(b), nil
}

func (r *remote) Send(_ context.Context, b *domain.Backorder) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sends++
	if b.IsDraft() {
		r.nextID++
		b.ID = fmt.Sprintf("remote-%d", r.nextID)
	} else if stored, ok := r.orders[b.ID]; ok && stored.Version != b.Version {
		return domain.ErrVersionConflict
	}
	b.Version++
	r.orders[b.ID] = clone(b)
	return nil
}

func (r *remote) Complete(_ context.Context, b *domain.Backorder) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	r.completed = append(r.completed, clone(b))
	return nil
}

// seed stores an already sent backorder.
func (r *remote) seed(b *domain.Backorder) {
	r.orders[b.ID] = clone(b)
}

func clone(b *domain.Backorder) *domain.Backorder {
	c := *b
	c.Lines = make([]*domain.Line, 0, len(b.Lines))
	for _, l := range b.Lines {
		lc := *l
		c.Lines = append(c.Lines, &lc)
	}
	return &c
}

type demand map[string]int64

func (d demand) InvoiceableQuantity(_ context.Context, _ domain.Scope, variantID string) (int64, error) {
	return d[variantID], nil
}

type links struct {
	byScope map[domain.Scope]*domain.Link
	lease   time.Duration
}

func newLinks() *links {
	return &links{byScope: map[domain.Scope]*domain.Link{}, lease: 15 * time.Minute}
}

func (l *links) Find(_ context.Context, scope domain.Scope) (domain.Link, error) {
	link, ok := l.byScope[scope]
	if !ok {
		return domain.Link{}, domain.ErrNotLinked
	}
	return *link, nil
}

func (l *links) Link(_ context.Context, scope domain.Scope, remoteOrderID string) error {
	l.byScope[scope] = &domain.Link{Scope: scope, RemoteOrderID: remoteOrderID, State: domain.StateOpen, UpdatedAt: time.Now()}
	return nil
}

func (l *links) BeginFinalize(_ context.Context, scope domain.Scope, remoteOrderID string) error {
	link, ok := l.byScope[scope]
	if !ok {
		l.byScope[scope] = &domain.Link{Scope: scope, RemoteOrderID: remoteOrderID, State: domain.StateFinalizing, UpdatedAt: time.Now()}
		return nil
	}
	if link.RemoteOrderID != remoteOrderID {
		return domain.ErrLinkMismatch
	}
	expired := link.State == domain.StateFinalizing && time.Since(link.UpdatedAt) > l.lease
	if !link.State.CanTransition(domain.StateFinalizing) && !expired {
		return domain.ErrFinalizeInProgress
	}
	link.State = domain.StateFinalizing
	link.UpdatedAt = time.Now()
	return nil
}

func (l *links) MarkFinalized(_ context.Context, scope domain.Scope) error {
	l.byScope[scope].State = domain.StateFinalized
	return nil
}

func (l *links) MarkFinalizeFailed(_ context.Context, scope domain.Scope, reason string) error {
	l.byScope[scope].State = domain.StateFinalizeFailed
	l.byScope[scope].LastError = reason
	return nil
}

type lock struct {
	orderIDs   []string
	variantIDs [][]string
}

func (l *lock) WithLock(ctx context.Context, orderID string, variantIDs []string, fn func(context.Context) error) error {
	l.orderIDs = append(l.orderIDs, orderID)
	l.variantIDs = append(l.variantIDs, variantIDs)
	return fn(ctx)
}

type notifier struct {
	incidents []domain.Incident
}

func (n *notifier) BackorderIncomplete(_ context.Context, incident domain.Incident) error {
	n.incidents = append(n.incidents, incident)
	return nil
}

type harness struct {
	stock    *stock
	dir      *directory
	remote   *remote
	demand   demand
	links    *links
	lock     *lock
	notifier *notifier
}

func newHarness() *harness {
	st := newStock()
	return &harness{
		stock:    st,
		dir:      &directory{stock: st},
		remote:   newRemote(),
		demand:   demand{},
		links:    newLinks(),
		lock:     &lock{},
		notifier: &notifier{},
	}
}

func (h *harness) ports() Ports {
	return Ports{
		Variants: h.dir,
		Remote:   h.remote,
		Ledger:   h.stock,
		Demand:   h.demand,
		Links:    h.links,
		Lock:     h.lock,
		Notifier: h.notifier,
	}
}

func (h *harness) reconciler() *Reconciler { return NewReconciler(discardLogger(), h.ports()) }

func (h *harness) finalizer() *Finalizer { return NewFinalizer(discardLogger(), h.ports()) }

func (h *harness) onHand(variantID string) int64 {
	h.stock.mu.Lock()
	defer h.stock.mu.Unlock()
	return h.stock.onHand[variantID]
}

// backorder returns the remote copy linked to scope.
func (h *harness) backorder(scope domain.Scope) *domain.Backorder {
	link, ok := h.links.byScope[scope]
	if !ok {
		return nil
	}
	return h.remote.orders[link.RemoteOrderID]
}

func lineFor(b *domain.Backorder, offerID string) *domain.Line {
	if b == nil {
		return nil
	}
	for _, l := range b.Lines {
		if l.OfferID == offerID {
			return l
		}
	}
	return nil
}
