package domain

import "errors"

// ErrAdjustmentMismatch is returned when an adjustment key is journaled
// again with a different delta.
var ErrAdjustmentMismatch = errors.New("adjustment already journaled with another delta")

// RetailVariant is a sellable unit at a hub linked to one remote product.
// OnHand may be negative: it is the unmet demand of an on-demand variant.
type RetailVariant struct {
	ID        string
	ProductID string
	Link      string
	OnDemand  bool
	OnHand    int64
}

// Adjustment is one journaled change to a variant's on-hand counter.
// (Pass, VariantID, Key) is unique; applying it twice is a no-op.
// Packs is the change to the backorder line the adjustment stands for.
type Adjustment struct {
	Pass      string
	VariantID string
	Key       string
	Delta     int64
	Packs     int64
}

// Journal lists the adjustments a pass has already applied.
type Journal []Adjustment

// Delta sums the pass's adjustments of one variant.
func (j Journal) Delta(variantID string) int64 {
	var sum int64
	for _, a := range j {
		if a.VariantID == variantID {
			sum += a.Delta
		}
	}
	return sum
}

func (j Journal) Find(variantID, key string) (Adjustment, bool) {
	for _, a := range j {
		if a.VariantID == variantID && a.Key == key {
			return a, true
		}
	}
	return Adjustment{}, false
}

type Variants []RetailVariant

// LinkedTo finds the variant linked to a remote product id.
func (vs Variants) LinkedTo(link string) (RetailVariant, bool) {
	for _, v := range vs {
		if v.Link == link {
			return v, true
		}
	}
	return RetailVariant{}, false
}

func (vs Variants) IDs() []string {
	ids := make([]string, 0, len(vs))
	for _, v := range vs {
		ids = append(ids, v.ID)
	}
	return ids
}
