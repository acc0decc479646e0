package order

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Cause tags who drove a transition, so every status change is auditable.
type Cause string

const (
	CauseTimer    Cause = "timer"
	CauseOperator Cause = "operator"
	CauseReview   Cause = "review"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusShipping: true, StatusCancelled: true},
	StatusShipping:  {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

const (
	// CancelWindow bounds user-initiated cancellation, measured from order
	// creation on the wall clock. It matches the auto-confirm delay.
	CancelWindow = 5 * time.Minute

	confirmAfter = 5 * time.Minute
	prepareAfter = 30 * time.Minute
	shipAfter    = 60 * time.Minute
	deliverAfter = 120 * time.Minute
)
