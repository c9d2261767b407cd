package domain

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderAdjusted  = "OrderAdjusted"
	EventOrderCancelled = "OrderCancelled"
)

// OrderChanged is the payload of every order lifecycle event.
type OrderChanged struct {
	Order Order
}

func IsLifecycleEvent(eventType string) bool {
	switch eventType {
	case EventOrderPlaced, EventOrderAdjusted, EventOrderCancelled:
		return true
	}
	return false
}
