package protocol

import (
	"errors"
	"testing"
)

func TestDecodeKnownMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join-room","roomId":"ABC123"}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeJoinRoom || msg.RoomID != "ABC123" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"roomId":"ABC123"}`, ""} {
		if _, err := Decode([]byte(raw)); err == nil || errors.Is(err, ErrUnknownType) {
			t.Errorf("expected format error for %q, got %v", raw, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"self-destruct"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRoomLeftAlwaysSucceeds(t *testing.T) {
	msg := RoomLeft()
	if msg.Success == nil || !*msg.Success {
		t.Fatal("room-left must report success:true")
	}
}

func TestPeersListNeverNil(t *testing.T) {
	data, err := PeersList("ABC123", nil).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Peers == nil {
		t.Fatal("peers-list must carry an empty list, not null")
	}
}

func TestNewRoomCodeFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewRoomCode()
		if !ValidRoomCode(code) {
			t.Fatalf("generated invalid room code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Errorf("room codes suspiciously repetitive: %d unique of 100", len(seen))
	}
}

func TestIsSignal(t *testing.T) {
	for _, typ := range []string{TypeOffer, TypeAnswer, TypeICECandidate} {
		if !IsSignal(typ) {
			t.Errorf("expected %q to be a signal", typ)
		}
	}
	for _, typ := range []string{TypeCreateRoom, TypePing, TypePeerJoined, "bogus"} {
		if IsSignal(typ) {
			t.Errorf("expected %q not to be a signal", typ)
		}
	}
}

func TestValidRoomCode(t *testing.T) {
	valid := []string{"ABC123", "ZZZZZZ", "000000"}
	invalid := []string{"", "abc123", "ABC12", "ABC1234", "ABC 12", "ABC12!"}
	for _, c := range valid {
		if !ValidRoomCode(c) {
			t.Errorf("expected %q valid", c)
		}
	}
	for _, c := range invalid {
		if ValidRoomCode(c) {
			t.Errorf("expected %q invalid", c)
		}
	}
}
