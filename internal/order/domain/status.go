package domain

type Status string

const (
	StatusReserved  Status = "reserved"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusReserved, StatusApproved, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

type Event string

const (
	EventApprove  Event = "approve"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	// EventReorder leaves the source order completed; the reorder itself is a new order.
	EventReorder Event = "reorder"
)

var transitions = map[Status]map[Event]Status{
	StatusReserved: {
		EventApprove: StatusApproved,
		EventCancel:  StatusCancelled,
	},
	StatusApproved: {
		EventComplete: StatusCompleted,
	},
	StatusCompleted: {
		EventReorder: StatusCompleted,
	},
}

func (s Status) Next(e Event) (Status, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, &InvalidTransitionError{From: s, Event: e}
	}
	return next, nil
}
