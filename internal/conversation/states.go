// Package conversation owns the lifecycle of a lead conversation: the state
// machine, the durable store, and the worker that processes queued jobs.
package conversation

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusNew         Status = "new"
	StatusReplied     Status = "replied"
	StatusEngaged     Status = "engaged"
	StatusQualified   Status = "qualified"
	StatusBooked      Status = "booked"
	StatusUnqualified Status = "unqualified"
	StatusAbandoned   Status = "abandoned"
	StatusEscalated   Status = "escalated"
)

// statusRank orders the progression path. A transition is only applied when
// it moves forward; late or out-of-order events can never regress a
// conversation.
var statusRank = map[Status]int{
	StatusNew:       0,
	StatusReplied:   1,
	StatusEngaged:   2,
	StatusQualified: 3,
	StatusBooked:    4,
}

// terminalStatuses end the conversation. No further transitions apply.
var terminalStatuses = map[Status]bool{
	StatusBooked:      true,
	StatusUnqualified: true,
	StatusAbandoned:   true,
	StatusEscalated:   true,
}

// IsTerminal reports whether no further transitions may apply.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, onPath := statusRank[s]
	return onPath || terminalStatuses[s]
}

// CanTransition reports whether moving from -> to is allowed. Terminal states
// accept nothing. Exits to unqualified or escalated are allowed from any
// non-terminal state; abandonment only applies while the conversation is
// waiting on the lead, in replied or engaged. Progression states must move
// strictly forward.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusAbandoned {
		return from == StatusReplied || from == StatusEngaged
	}
	if to == StatusUnqualified || to == StatusEscalated {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Advance returns the state after attempting a transition. Disallowed
// transitions leave the state unchanged, so stale events are dropped rather
// than rejected.
func Advance(from, to Status) (Status, bool) {
	if CanTransition(from, to) {
		return to, true
	}
	return from, false
}
