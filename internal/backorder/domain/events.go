package domain

const (
	EventBackorderOpened     = "BackorderOpened"
	EventBackorderCompleted  = "BackorderCompleted"
	EventBackorderIncomplete = "BackorderIncomplete"
)

type BackorderOpened struct {
	UserID        string
	DistributorID string
	OrderCycleID  string
	RemoteOrderID string
}

type BackorderCompleted struct {
	DistributorID string
	OrderCycleID  string
	RemoteOrderID string
}

type BackorderIncomplete struct {
	UserID        string
	DistributorID string
	OrderCycleID  string
	RemoteOrderID string
	Reason        string
}

// EventOrderCycleClosed arrives from the hub when an order cycle stops
// taking orders.
const EventOrderCycleClosed = "OrderCycleClosed"

type OrderCycleClosed struct {
	UserID        string
	DistributorID string
	OrderCycleID  string
}
