package orders

type Status string

const (
	StatusReceived  Status = "received"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked_up"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Forward-only lifecycle. Cancellation is not a transition target; see Service.Cancel.
var validNext = map[Status]Status{
	StatusReceived:  StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusPickedUp,
}

func CanTransition(from, to Status) bool {
	next, ok := validNext[from]
	return ok && next == to
}

// Next returns the immediate successor of s, false for terminal states.
func Next(s Status) (Status, bool) {
	n, ok := validNext[s]
	return n, ok
}

func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusPreparing, StatusReady, StatusPickedUp, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusPickedUp || s == StatusCancelled
}

var (
	ActiveStatuses  = []Status{StatusReceived, StatusPreparing, StatusReady}
	HistoryStatuses = []Status{StatusPickedUp, StatusCancelled}
)
