package domain

import "fmt"

// Line is one line of a wholesale draft order. Quantity counts whole packs.
type Line struct {
	OfferID   string
	ProductID string
	Quantity  int64
}

// Backorder is the remote wholesale order kept in sync with hub demand.
// An empty ID means the draft has not been sent yet.
type Backorder struct {
	ID      string
	Scope   Scope
	Version int64
	Lines   []*Line
}

func NewDraft(scope Scope) *Backorder {
	return &Backorder{Scope: scope}
}

func (b *Backorder) IsDraft() bool { return b.ID == "" }

// FindOrBuildLine returns the line ordering offer, appending an empty one
// when the backorder does not contain it yet.
func (b *Backorder) FindOrBuildLine(offer Offer) *Line {
	for _, l := range b.Lines {
		if l.OfferID == offer.ID {
			return l
		}
	}
	l := &Line{OfferID: offer.ID, ProductID: offer.ProductID}
	b.Lines = append(b.Lines, l)
	return l
}

// Prune drops lines with no packs left.
func (b *Backorder) Prune() {
	kept := b.Lines[:0]
	for _, l := range b.Lines {
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(b.Lines); i++ {
		b.Lines[i] = nil
	}
	b.Lines = kept
}

func (b *Backorder) TotalPacks() int64 {
	var n int64
	for _, l := range b.Lines {
		n += l.Quantity
	}
	return n
}

// PassKey names one reconciliation pass over this backorder revision.
// Retrying the same trigger against the same revision yields the same key.
func (b *Backorder) PassKey(trigger string) string {
	id := b.ID
	if id == "" {
		id = "draft:" + b.Scope.String()
	}
	return fmt.Sprintf("%s@%s#%d", trigger, id, b.Version)
}
