// Package client drives one sync session: it negotiates a direct transfer
// channel with a peer through the relay, carries exactly one snapshot
// across it, and merges the received snapshot into local state.
package client

import "fmt"

// State is the negotiation state of a session.
type State int

const (
	// StateIdle is the resting state; a session starts and, after a
	// completed receive or a reset, ends here.
	StateIdle State = iota
	// StateConnecting covers relay dial through room acknowledgment.
	StateConnecting
	// StateHosting waits for a peer to join the created room.
	StateHosting
	// StateJoined waits for the host's offer.
	StateJoined
	// StateConnected has an open transfer channel.
	StateConnected
	// StateShared is terminal for the sending side: the payload write
	// completed.
	StateShared
	// StateError is reachable from any non-terminal state; only Reset
	// leaves it.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHosting:
		return "hosting"
	case StateJoined:
		return "joined"
	case StateConnected:
		return "connected"
	case StateShared:
		return "shared"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions is the legal state graph. Reset handles the universal
// any-state-to-idle edge separately, so it is not listed here.
var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateHosting, StateJoined, StateError},
	StateHosting:    {StateConnected, StateError},
	StateJoined:     {StateConnected, StateError},
	StateConnected:  {StateShared, StateIdle, StateError},
	StateShared:     {},
	StateError:      {},
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
