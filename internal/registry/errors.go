package registry

import "fmt"

// ErrorKind classifies registry failures
type ErrorKind int

const (
	// KindInvalidFacts rejects an ingestion; the node's prior state is kept
	KindInvalidFacts ErrorKind = iota + 1
	// KindNotFound reports an absent node or drive
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidFacts:
		return "invalid facts"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Error is returned by registry operations
type Error struct {
	Kind    ErrorKind
	NodeID  string
	DriveID string
	Reason  string
}

// Sentinels for errors.Is; they match any Error of the same kind
var (
	ErrInvalidFacts = &Error{Kind: KindInvalidFacts}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	msg := "registry: " + e.Kind.String()
	if e.NodeID != "" {
		msg += fmt.Sprintf(": node %q", e.NodeID)
	}
	if e.DriveID != "" {
		msg += fmt.Sprintf(" drive %q", e.DriveID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches sentinels by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.NodeID == "" && t.DriveID == "" && t.Reason == ""
}

func invalidFacts(nodeID, driveID, reason string) error {
	return &Error{Kind: KindInvalidFacts, NodeID: nodeID, DriveID: driveID, Reason: reason}
}

func notFound(nodeID, driveID string) error {
	return &Error{Kind: KindNotFound, NodeID: nodeID, DriveID: driveID}
}
