package client

import "testing"

func TestLegalTransitions(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateIdle, StateConnecting},
		{StateConnecting, StateHosting},
		{StateConnecting, StateJoined},
		{StateConnecting, StateError},
		{StateHosting, StateConnected},
		{StateJoined, StateConnected},
		{StateConnected, StateShared},
		{StateConnected, StateIdle},
		{StateConnected, StateError},
	}
	for _, tr := range legal {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be legal", tr.from, tr.to)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	illegal := []struct{ from, to State }{
		{StateIdle, StateHosting},   // must pass through Connecting
		{StateIdle, StateConnected}, // no channel before negotiation
		{StateHosting, StateShared}, // payload before channel open
		{StateJoined, StateShared},  // receiver never reaches Shared
		{StateShared, StateConnecting},
		{StateError, StateConnecting}, // only Reset leaves Error
	}
	for _, tr := range illegal {
		if canTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be illegal", tr.from, tr.to)
		}
	}
}

func TestStateStrings(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateHosting:    "hosting",
		StateJoined:     "joined",
		StateConnected:  "connected",
		StateShared:     "shared",
		StateError:      "error",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
