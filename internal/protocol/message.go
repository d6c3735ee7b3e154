// Package protocol defines the signaling messages exchanged between clients
// and the relay over the websocket connection. These frames coordinate room
// membership and connection negotiation; the relay never sees the snapshot
// payload itself.
package protocol

import (
	"encoding/json"
	"errors"
)

// Client-originated message types.
const (
	TypeCreateRoom   = "create-room"
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
)

// Server-originated message types.
const (
	TypeConnected   = "connected"
	TypeRoomCreated = "room-created"
	TypeRoomJoined  = "room-joined"
	TypeRoomLeft    = "room-left"
	TypePeersList   = "peers-list"
	TypePeerJoined  = "peer-joined"
	TypePeerLeft    = "peer-left"
	TypePong        = "pong"
	TypeError       = "error"
)

// ErrUnknownType is returned by Decode for a frame whose type the protocol
// does not define.
var ErrUnknownType = errors.New("unknown message type")

// PeerInfo identifies one room member in peers-list and peer-joined frames.
type PeerInfo struct {
	ID string `json:"id"`
}

// Message is the single wire envelope. One frame carries one message; only
// the fields required by Type are populated.
type Message struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"clientId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Peers     []PeerInfo      `json:"peers,omitempty"`
	Peer      *PeerInfo       `json:"peer,omitempty"`
	PeerID    string          `json:"peerId,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`   // SDP for offer/answer
	Candidate json.RawMessage `json:"candidate,omitempty"` // ICE candidate
	Message   string          `json:"message,omitempty"`   // error text
}

// Marshal serializes the message to one JSON frame.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one frame. A frame that is not valid JSON or has an empty
// type is a format error; a well-formed frame with an unrecognized type
// returns ErrUnknownType so the caller can answer accordingly.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("missing message type")
	}
	if !knownType(msg.Type) {
		return &msg, ErrUnknownType
	}
	return &msg, nil
}

func knownType(t string) bool {
	switch t {
	case TypeCreateRoom, TypeJoinRoom, TypeLeaveRoom,
		TypeOffer, TypeAnswer, TypeICECandidate,
		TypePing, TypePong,
		TypeConnected, TypeRoomCreated, TypeRoomJoined, TypeRoomLeft,
		TypePeersList, TypePeerJoined, TypePeerLeft, TypeError:
		return true
	}
	return false
}

// IsSignal reports whether the type is one of the relayed negotiation
// messages (offer, answer, ice-candidate).
func IsSignal(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Connected builds the greeting frame carrying the server-minted client id.
func Connected(clientID string) *Message {
	return &Message{Type: TypeConnected, ClientID: clientID}
}

// RoomCreated acknowledges a create-room request.
func RoomCreated(roomID string) *Message {
	return &Message{Type: TypeRoomCreated, RoomID: roomID}
}

// RoomJoined acknowledges a join-room request.
func RoomJoined(roomID string) *Message {
	return &Message{Type: TypeRoomJoined, RoomID: roomID}
}

// RoomLeft acknowledges a leave-room request. It always reports success.
func RoomLeft() *Message {
	ok := true
	return &Message{Type: TypeRoomLeft, Success: &ok}
}

// PeersList lists the other current members of a room.
func PeersList(roomID string, peers []PeerInfo) *Message {
	if peers == nil {
		peers = []PeerInfo{}
	}
	return &Message{Type: TypePeersList, RoomID: roomID, Peers: peers}
}

// PeerJoined announces a new room member to the existing ones.
func PeerJoined(id string) *Message {
	return &Message{Type: TypePeerJoined, Peer: &PeerInfo{ID: id}}
}

// PeerLeft announces a departed room member.
func PeerLeft(id string) *Message {
	return &Message{Type: TypePeerLeft, PeerID: id}
}

// Pong answers a client ping.
func Pong() *Message {
	return &Message{Type: TypePong}
}

// ErrorMessage builds an error frame with a human-readable description.
func ErrorMessage(text string) *Message {
	return &Message{Type: TypeError, Message: text}
}
