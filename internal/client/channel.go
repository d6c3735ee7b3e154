package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// transferLabel names the single data channel a session opens.
const transferLabel = "snapshot"

// ErrChannelClosed is returned when sending on a failed or closed channel.
var ErrChannelClosed = errors.New("transfer channel closed")

// TransferChannel is the direct, relay-independent path carrying exactly
// one snapshot. It hides the WebRTC negotiation plumbing from the session
// state machine: the session only forwards opaque payloads between the
// channel and the relay.
type TransferChannel struct {
	pc *webrtc.PeerConnection

	mu sync.Mutex
	dc *webrtc.DataChannel

	opened     chan struct{}
	openOnce   sync.Once
	inbound    chan []byte
	failed     chan struct{}
	failOnce   sync.Once
	failReason error

	// localCandidates carries ICE candidates that must be forwarded to the
	// remote peer through the relay.
	localCandidates chan json.RawMessage
}

func newTransferChannel() (*TransferChannel, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	tc := &TransferChannel{
		pc:              pc,
		opened:          make(chan struct{}),
		inbound:         make(chan []byte, 1),
		failed:          make(chan struct{}),
		localCandidates: make(chan json.RawMessage, 16),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		select {
		case tc.localCandidates <- data:
		case <-tc.failed:
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			tc.fail(fmt.Errorf("peer connection %s", state))
		}
	})

	return tc, nil
}

// NewOfferer creates the sending side: it owns the data channel and will
// produce the offer.
func NewOfferer() (*TransferChannel, error) {
	tc, err := newTransferChannel()
	if err != nil {
		return nil, err
	}
	dc, err := tc.pc.CreateDataChannel(transferLabel, nil)
	if err != nil {
		tc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	tc.attach(dc)
	return tc, nil
}

// NewAnswerer creates the receiving side: the data channel arrives with the
// offerer's negotiation.
func NewAnswerer() (*TransferChannel, error) {
	tc, err := newTransferChannel()
	if err != nil {
		return nil, err
	}
	tc.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != transferLabel {
			return
		}
		tc.attach(dc)
	})
	return tc, nil
}

func (tc *TransferChannel) attach(dc *webrtc.DataChannel) {
	tc.mu.Lock()
	tc.dc = dc
	tc.mu.Unlock()

	dc.OnOpen(func() {
		tc.openOnce.Do(func() { close(tc.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case tc.inbound <- msg.Data:
		default:
			// One snapshot per session; drop anything past the first.
		}
	})
	dc.OnClose(func() {
		tc.fail(ErrChannelClosed)
	})
}

// CreateOffer produces the local SDP offer payload to relay to the peer.
func (tc *TransferChannel) CreateOffer() (json.RawMessage, error) {
	offer, err := tc.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := tc.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

// AcceptOffer ingests a relayed offer and produces the answer payload.
func (tc *TransferChannel) AcceptOffer(payload json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if err := tc.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := tc.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := tc.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

// AcceptAnswer ingests the relayed answer on the offering side.
func (tc *TransferChannel) AcceptAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if err := tc.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddRemoteCandidate ingests a relayed ICE candidate.
func (tc *TransferChannel) AddRemoteCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	return tc.pc.AddICECandidate(init)
}

// LocalCandidates yields candidates to forward to the peer via the relay.
func (tc *TransferChannel) LocalCandidates() <-chan json.RawMessage {
	return tc.localCandidates
}

// Opened closes once the data channel reports open.
func (tc *TransferChannel) Opened() <-chan struct{} {
	return tc.opened
}

// Inbound yields the received payload.
func (tc *TransferChannel) Inbound() <-chan []byte {
	return tc.inbound
}

// Failed closes when the channel fails or closes; Err then holds the cause.
func (tc *TransferChannel) Failed() <-chan struct{} {
	return tc.failed
}

// Err returns the failure cause after Failed closes.
func (tc *TransferChannel) Err() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.failReason
}

// Send writes the payload on the open data channel.
func (tc *TransferChannel) Send(data []byte) error {
	tc.mu.Lock()
	dc := tc.dc
	tc.mu.Unlock()
	if dc == nil {
		return ErrChannelClosed
	}
	select {
	case <-tc.failed:
		return ErrChannelClosed
	default:
	}
	return dc.Send(data)
}

func (tc *TransferChannel) fail(reason error) {
	tc.failOnce.Do(func() {
		tc.mu.Lock()
		tc.failReason = reason
		tc.mu.Unlock()
		close(tc.failed)
	})
}

// Close releases the peer connection.
func (tc *TransferChannel) Close() error {
	tc.fail(ErrChannelClosed)
	return tc.pc.Close()
}
