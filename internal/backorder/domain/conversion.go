package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Factor is the number of retail units contained in one wholesale pack.
// The zero value is invalid; build one with NewFactor or FactorOf.
type Factor struct {
	d decimal.Decimal
}

// Unit is the identity factor used when a wholesale product is sold as is.
var Unit = Factor{d: decimal.NewFromInt(1)}

func NewFactor(d decimal.Decimal) (Factor, error) {
	if !d.IsPositive() {
		return Factor{}, fmt.Errorf("%w: %s", ErrInvalidFactor, d)
	}
	return Factor{d: d}, nil
}

// ParseFactor accepts decimal notation ("12", "2.5").
func ParseFactor(s string) (Factor, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Factor{}, fmt.Errorf("%w: %q", ErrInvalidFactor, s)
	}
	return NewFactor(d)
}

// FactorOf is a convenience for whole-number pack sizes.
func FactorOf(n int64) Factor {
	f, err := NewFactor(decimal.NewFromInt(n))
	if err != nil {
		panic(err)
	}
	return f
}

func (f Factor) Decimal() decimal.Decimal { return f.d }

func (f Factor) IsZero() bool { return f.d.IsZero() }

func (f Factor) String() string { return f.d.String() }

// WholesalePacksNeeded converts a retail shortfall to packs, rounding up so
// the hub never under-orders.
func (f Factor) WholesalePacksNeeded(retail int64) int64 {
	if retail <= 0 {
		return 0
	}
	q, r := decimal.NewFromInt(retail).QuoRem(f.d, 0)
	packs := q.IntPart()
	if r.IsPositive() {
		packs++
	}
	return packs
}

// RetailUnitsFor is the retail stock represented by packs, floored so a
// fractional factor never credits stock that does not exist.
func (f Factor) RetailUnitsFor(packs int64) int64 {
	return decimal.NewFromInt(packs).Mul(f.d).Floor().IntPart()
}

// WholesalePacksContainedIn counts the whole packs already covered by
// retail stock on hand. Non-positive stock covers nothing.
func (f Factor) WholesalePacksContainedIn(onHand int64) int64 {
	if onHand <= 0 {
		return 0
	}
	q, _ := decimal.NewFromInt(onHand).QuoRem(f.d, 0)
	return q.IntPart()
}

// StockPlan is the outcome of applying the on-demand policy to one line.
// At most one of PacksAdded and PacksReleased is non-zero.
type StockPlan struct {
	PacksAdded    int64
	PacksReleased int64
	StockDelta    int64
}

// LineDelta is the change to apply to the line quantity.
func (p StockPlan) LineDelta() int64 { return p.PacksAdded - p.PacksReleased }

// PlanOnDemand orders packs for a negative on-hand, or releases packs the
// existing stock already covers.
func PlanOnDemand(onHand, lineQuantity int64, f Factor) StockPlan {
	if onHand < 0 {
		packs := f.WholesalePacksNeeded(-onHand)
		return StockPlan{PacksAdded: packs, StockDelta: f.RetailUnitsFor(packs)}
	}
	return PlanRelease(onHand, lineQuantity, f)
}

// PlanRelease gives back the packs of a line already covered by stock.
func PlanRelease(onHand, lineQuantity int64, f Factor) StockPlan {
	covered := min(lineQuantity, f.WholesalePacksContainedIn(onHand))
	if covered <= 0 {
		return StockPlan{}
	}
	return StockPlan{PacksReleased: covered, StockDelta: -f.RetailUnitsFor(covered)}
}
