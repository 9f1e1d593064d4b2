package domain

import "fmt"

type Status string

const (
	StatusOrdered   Status = "ORDERED"
	StatusAccepted  Status = "ACCEPTED"
	StatusShipping  Status = "SHIPPING"
	StatusDelivered Status = "DELIVERED"
)

var validNext = map[Status]map[Status]bool{
	StatusOrdered:   {StatusAccepted: true},
	StatusAccepted:  {StatusShipping: true},
	StatusShipping:  {StatusDelivered: true},
	StatusDelivered: {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// CanTransition reports whether from->to is an edge of the order lifecycle.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// TransitionPolicy decides whether an order may move between two valid statuses.
type TransitionPolicy interface {
	Check(from, to Status) error
}

// StrictTransitions only allows ORDERED->ACCEPTED->SHIPPING->DELIVERED.
type StrictTransitions struct{}

func (StrictTransitions) Check(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: order cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OpenTransitions accepts any valid status after any other.
type OpenTransitions struct{}

func (OpenTransitions) Check(_, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, to)
	}
	return nil
}

func PolicyByName(name string) (TransitionPolicy, error) {
	switch name {
	case "", "open":
		return OpenTransitions{}, nil
	case "strict":
		return StrictTransitions{}, nil
	}
	return nil, fmt.Errorf("unknown status policy %q", name)
}
