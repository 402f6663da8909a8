package lifecycle

import (
	"errors"
	"time"
)

// State is the binding state of a Controller.
type State int32

const (
	Unbound State = iota
	Binding
	Bound
	Unbinding
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Binding:
		return "binding"
	case Bound:
		return "bound"
	case Unbinding:
		return "unbinding"
	default:
		return "unknown"
	}
}

// HostEvent is a lifecycle event delivered by the host shell.
type HostEvent int

const (
	EventCreate HostEvent = iota
	EventStart
	EventStop
	EventDestroy
)

func (e HostEvent) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Transition describes a single state change of a Controller.
type Transition struct {
	Service string
	From    State
	To      State
	Err     error // set when the change came from a failed bind or a lost connection
	At      time.Time
}

// Listener observes transitions. It is called outside the controller lock
// and must not block for long. Transitions arrive in the order they were
// made, possibly on a goroutine other than the one that caused them.
type Listener func(Transition)

var (
	// ErrBindFailed wraps the cause of a bind request that did not produce a connection.
	ErrBindFailed = errors.New("bind failed")
	// ErrInvalidTransition marks a state change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnknownEvent is returned by HandleEvent for events it does not map.
	ErrUnknownEvent = errors.New("unknown host event")
)

// allowed lists the legal successors of each state. Bound never moves to
// Unbound directly; doing so would drop a live connection.
var allowed = map[State][]State{
	Unbound:   {Binding},
	Binding:   {Bound, Unbound},
	Bound:     {Unbinding},
	Unbinding: {Unbound},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
