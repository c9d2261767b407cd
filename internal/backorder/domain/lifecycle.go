package domain

import "time"

// State is the lifecycle of a backorder as seen by this hub.
type State string

const (
	StateOpen           State = "open"
	StateFinalizing     State = "finalizing"
	StateFinalized      State = "finalized"
	StateFinalizeFailed State = "finalize_failed"
)

// transitions maps a target state to the states it may be reached from.
// Besides these, a finalizing claim older than the store's lease may be
// claimed again by a new run.
var transitions = map[State][]State{
	StateFinalizing:     {StateOpen, StateFinalizeFailed},
	StateFinalized:      {StateFinalizing},
	StateFinalizeFailed: {StateFinalizing},
}

// AllowedFrom lists the states a backorder may move to `to` from.
func AllowedFrom(to State) []State {
	return transitions[to]
}

func (s State) CanTransition(to State) bool {
	for _, from := range transitions[to] {
		if from == s {
			return true
		}
	}
	return false
}

// Amendable reports whether local demand changes may still reach the remote order.
func (s State) Amendable() bool { return s == StateOpen }

// Link ties an order cycle's outgoing exchange to its remote backorder.
type Link struct {
	Scope         Scope
	RemoteOrderID string
	State         State
	LastError     string
	UpdatedAt     time.Time
	UnlinkedAt    *time.Time
}

// Incident describes a finalization an operator has to resolve by hand.
type Incident struct {
	Scope         Scope
	RemoteOrderID string
	Reason        string
}
