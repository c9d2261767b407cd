package domain

import "fmt"

// Scope identifies the backorder of one distributor in one order cycle and
// the user whose remote credentials manage it.
type Scope struct {
	UserID        string
	DistributorID string
	OrderCycleID  string
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.DistributorID, s.OrderCycleID)
}
