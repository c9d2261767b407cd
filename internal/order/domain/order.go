package domain

import (
	"fmt"
	"slices"
	"time"
)

type OrderState string

const (
	StateCart     OrderState = "cart"
	StateComplete OrderState = "complete"
	StateResumed  OrderState = "resumed"
	StateCanceled OrderState = "canceled"
	StateReturned OrderState = "returned"
)

// InvoiceableStates are the order states counted as confirmed demand.
var InvoiceableStates = []OrderState{StateComplete, StateResumed}

// Order is a hub customer order placed in an order cycle.
// UserID is the distributor owner acting on the remote catalog.
type Order struct {
	ID            string
	UserID        string
	DistributorID string
	OrderCycleID  string
	State         OrderState
	Revision      int64
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	VariantID string
	Quantity  int64
}

func (o Order) Invoiceable() bool {
	return slices.Contains(InvoiceableStates, o.State)
}

// Trigger identifies this order revision as the cause of an amend pass.
func (o Order) Trigger() string {
	return fmt.Sprintf("order:%s:%d", o.ID, o.Revision)
}

func (o Order) VariantIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.VariantID)
	}
	return ids
}
