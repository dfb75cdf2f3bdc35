package allocation

import "fmt"

// ErrorKind classifies allocation failures
type ErrorKind int

const (
	// KindInsufficientCapacity: the filtered pool cannot hold the request
	// even using all of it. The fix is more capacity.
	KindInsufficientCapacity ErrorKind = iota + 1
	// KindInsufficientDiversity: capacity exists but on too few distinct
	// nodes. The fix is more nodes.
	KindInsufficientDiversity
	// KindNoCandidates: no drive passed the filters at all
	KindNoCandidates
	// KindInvalidRequest: the request itself is malformed
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindInsufficientCapacity:
		return "insufficient capacity"
	case KindInsufficientDiversity:
		return "insufficient diversity"
	case KindNoCandidates:
		return "no candidates"
	case KindInvalidRequest:
		return "invalid request"
	default:
		return "unknown"
	}
}

// Error reports which constraint could not be met
type Error struct {
	Kind           ErrorKind
	RequestedBytes uint64
	AvailableBytes uint64
	RequiredNodes  int
	AvailableNodes int
	// Set when the fault domain count, not the node count, fell short
	RequiredDomains  int
	AvailableDomains int
	Reason           string
}

// Sentinels for errors.Is; they match any Error of the same kind
var (
	ErrInsufficientCapacity  = &Error{Kind: KindInsufficientCapacity}
	ErrInsufficientDiversity = &Error{Kind: KindInsufficientDiversity}
	ErrNoCandidates          = &Error{Kind: KindNoCandidates}
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindInsufficientCapacity:
		return fmt.Sprintf("allocation: insufficient capacity: requested %d bytes, %d available across %d nodes",
			e.RequestedBytes, e.AvailableBytes, e.AvailableNodes)
	case KindInsufficientDiversity:
		if e.RequiredDomains > e.AvailableDomains {
			return fmt.Sprintf("allocation: insufficient diversity: need %d fault domains, %d available",
				e.RequiredDomains, e.AvailableDomains)
		}
		return fmt.Sprintf("allocation: insufficient diversity: need %d distinct nodes, %d available",
			e.RequiredNodes, e.AvailableNodes)
	default:
		if e.Reason != "" {
			return "allocation: " + e.Kind.String() + ": " + e.Reason
		}
		return "allocation: " + e.Kind.String()
	}
}

// Is matches sentinels by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t == sentinel(t.Kind)
}

func sentinel(k ErrorKind) *Error {
	switch k {
	case KindInsufficientCapacity:
		return ErrInsufficientCapacity
	case KindInsufficientDiversity:
		return ErrInsufficientDiversity
	case KindNoCandidates:
		return ErrNoCandidates
	case KindInvalidRequest:
		return ErrInvalidRequest
	}
	return nil
}
