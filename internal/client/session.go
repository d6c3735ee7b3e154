package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
	"github.com/worldlyfantasy/priospace-sub000/internal/protocol"
	"github.com/worldlyfantasy/priospace-sub000/internal/snapshot"
)

// ErrBusy is returned when a host or join action is started while another
// one is outstanding. Sessions are strictly single-flight.
var ErrBusy = errors.New("sync already in progress")

// Session is one client's negotiation state machine. A session carries at
// most one outbound or one inbound transfer; after the single snapshot has
// crossed, the session is done.
type Session struct {
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	lastErr error

	relay   *RelayConn
	channel *TransferChannel
	roomID  string
}

// NewSession creates an idle session.
func NewSession(logger zerolog.Logger) *Session {
	return &Session{
		logger: logger.With().Str("component", "session").Logger(),
		state:  StateIdle,
	}
}

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session into StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RoomID returns the room this session created or joined.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// transition moves to a new state, enforcing the legal state graph.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.state, to)
	}
	s.logger.Debug().Stringer("from", s.state).Stringer("to", to).Msg("state transition")
	s.state = to
	return nil
}

// toError records err and moves to StateError from whatever state the
// session is in.
func (s *Session) toError(err error) error {
	s.mu.Lock()
	s.logger.Warn().Err(err).Stringer("from", s.state).Msg("session error")
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Host connects to the relay and creates roomCode, ending in StateHosting.
func (s *Session) Host(ctx context.Context, relayURL, roomCode string) error {
	if err := s.begin(ctx, relayURL, roomCode); err != nil {
		return err
	}
	if _, err := s.awaitAck(ctx, protocol.TypeCreateRoom, protocol.TypeRoomCreated); err != nil {
		return err
	}
	return s.transition(StateHosting)
}

// Join connects to the relay and joins roomCode, ending in StateJoined.
func (s *Session) Join(ctx context.Context, relayURL, roomCode string) error {
	if err := s.begin(ctx, relayURL, roomCode); err != nil {
		return err
	}
	if _, err := s.awaitAck(ctx, protocol.TypeJoinRoom, protocol.TypeRoomJoined); err != nil {
		return err
	}
	return s.transition(StateJoined)
}

// begin performs the shared Idle -> Connecting startup: single-flight
// check and relay dial.
func (s *Session) begin(ctx context.Context, relayURL, roomCode string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateConnecting
	s.roomID = roomCode
	s.mu.Unlock()

	rc, err := DialRelay(ctx, relayURL, s.logger)
	if err != nil {
		return s.toError(err)
	}
	s.mu.Lock()
	s.relay = rc
	s.mu.Unlock()
	return nil
}

// awaitAck sends a room request and waits for the matching acknowledgment,
// bounded by the connect timeout. A relay error frame or a dead connection
// fails the session.
func (s *Session) awaitAck(ctx context.Context, requestType, ackType string) (*protocol.Message, error) {
	if err := s.relay.Send(&protocol.Message{Type: requestType, RoomID: s.roomID}); err != nil {
		return nil, s.toError(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	for {
		msg, err := s.relay.Next(waitCtx)
		if err != nil {
			return nil, s.toError(fmt.Errorf("awaiting %s: %w", ackType, err))
		}
		switch msg.Type {
		case ackType:
			return msg, nil
		case protocol.TypeError:
			return nil, s.toError(fmt.Errorf("relay error: %s", msg.Message))
		default:
			// peers-list and similar may arrive interleaved; ignore here.
		}
	}
}

// WaitForPeer blocks in StateHosting until another peer joins the room and
// returns its id.
func (s *Session) WaitForPeer(ctx context.Context) (string, error) {
	if s.State() != StateHosting {
		return "", fmt.Errorf("not hosting (state %s)", s.State())
	}
	for {
		msg, err := s.relay.Next(ctx)
		if err != nil {
			return "", s.toError(fmt.Errorf("waiting for peer: %w", err))
		}
		switch msg.Type {
		case protocol.TypePeerJoined:
			if msg.Peer != nil {
				return msg.Peer.ID, nil
			}
		case protocol.TypePeersList:
			if len(msg.Peers) > 0 {
				return msg.Peers[0].ID, nil
			}
		case protocol.TypeError:
			return "", s.toError(fmt.Errorf("relay error: %s", msg.Message))
		}
	}
}

// SendSnapshot negotiates a transfer channel to peerID and pushes one
// snapshot across it. On success the session ends in StateShared.
func (s *Session) SendSnapshot(ctx context.Context, peerID string, snap *models.Snapshot) error {
	if s.State() != StateHosting {
		return fmt.Errorf("not hosting (state %s)", s.State())
	}

	tc, err := NewOfferer()
	if err != nil {
		return s.toError(err)
	}
	s.setChannel(tc)

	offer, err := tc.CreateOffer()
	if err != nil {
		return s.toError(err)
	}
	if err := s.relay.Send(&protocol.Message{
		Type: protocol.TypeOffer, RoomID: s.roomID, To: peerID, Payload: offer,
	}); err != nil {
		return s.toError(err)
	}

	forwardCtx, stopForward := context.WithCancel(ctx)
	defer stopForward()
	go s.forwardCandidates(forwardCtx, tc, peerID)
	go s.pumpSignals(forwardCtx, tc)

	select {
	case <-tc.Opened():
	case <-tc.Failed():
		return s.toError(fmt.Errorf("transfer channel: %w", tc.Err()))
	case <-ctx.Done():
		return s.toError(ctx.Err())
	}
	if err := s.transition(StateConnected); err != nil {
		return err
	}

	payload, err := snapshot.Encode(snap)
	if err != nil {
		return s.toError(err)
	}
	if err := tc.Send(payload); err != nil {
		return s.toError(fmt.Errorf("send snapshot: %w", err))
	}
	s.logger.Info().Int("bytes", len(payload)).Str("peer", peerID).Msg("snapshot sent")

	// The receiver closes the channel once the payload is in; treat that
	// close as delivery confirmation.
	select {
	case <-tc.Failed():
	case <-ctx.Done():
	}
	return s.transition(StateShared)
}

// ReceiveSnapshot waits in StateJoined for the host's offer, opens the
// receiving side of the channel, and returns the first validated snapshot.
// The session then tears down and returns to StateIdle: a transfer is
// single-shot.
func (s *Session) ReceiveSnapshot(ctx context.Context) (*models.Snapshot, error) {
	if s.State() != StateJoined {
		return nil, fmt.Errorf("not joined (state %s)", s.State())
	}

	tc, err := NewAnswerer()
	if err != nil {
		return nil, s.toError(err)
	}
	s.setChannel(tc)

	// Wait for the offer, answering whatever peer sent it.
	var hostID string
	for hostID == "" {
		msg, err := s.relay.Next(ctx)
		if err != nil {
			return nil, s.toError(fmt.Errorf("waiting for offer: %w", err))
		}
		switch msg.Type {
		case protocol.TypeOffer:
			answer, err := tc.AcceptOffer(msg.Payload)
			if err != nil {
				return nil, s.toError(err)
			}
			if err := s.relay.Send(&protocol.Message{
				Type: protocol.TypeAnswer, RoomID: s.roomID, To: msg.From, Payload: answer,
			}); err != nil {
				return nil, s.toError(err)
			}
			hostID = msg.From
		case protocol.TypeICECandidate:
			// Candidates can arrive only after the offer on an ordered
			// connection, but tolerate strays.
			_ = tc.AddRemoteCandidate(msg.Candidate)
		case protocol.TypeError:
			return nil, s.toError(fmt.Errorf("relay error: %s", msg.Message))
		}
	}

	forwardCtx, stopForward := context.WithCancel(ctx)
	defer stopForward()
	go s.forwardCandidates(forwardCtx, tc, hostID)
	go s.pumpSignals(forwardCtx, tc)

	var payload []byte
	connected := false
	for payload == nil {
		select {
		case <-tc.Opened():
			if !connected {
				connected = true
				if err := s.transition(StateConnected); err != nil {
					return nil, err
				}
			}
			select {
			case payload = <-tc.Inbound():
			case <-tc.Failed():
				return nil, s.toError(fmt.Errorf("transfer channel: %w", tc.Err()))
			case <-ctx.Done():
				return nil, s.toError(ctx.Err())
			}
		case payload = <-tc.Inbound():
		case <-tc.Failed():
			return nil, s.toError(fmt.Errorf("transfer channel: %w", tc.Err()))
		case <-ctx.Done():
			return nil, s.toError(ctx.Err())
		}
	}

	snap, err := snapshot.Decode(payload)
	if err != nil {
		// A payload that is not a valid snapshot is a visible failure, not
		// a silent drop.
		return nil, s.toError(fmt.Errorf("received payload: %w", err))
	}
	s.logger.Info().Int("bytes", len(payload)).Msg("snapshot received")

	s.teardown()
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	return snap, nil
}

// forwardCandidates relays local ICE candidates to the remote peer until
// the channel stops producing them.
func (s *Session) forwardCandidates(ctx context.Context, tc *TransferChannel, peerID string) {
	for {
		select {
		case cand := <-tc.LocalCandidates():
			if err := s.relay.Send(&protocol.Message{
				Type: protocol.TypeICECandidate, RoomID: s.roomID, To: peerID, Candidate: cand,
			}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pumpSignals feeds relayed answer/ice frames into the channel while a
// negotiation is in flight.
func (s *Session) pumpSignals(ctx context.Context, tc *TransferChannel) {
	for {
		msg, err := s.relay.Next(ctx)
		if err != nil {
			return
		}
		switch msg.Type {
		case protocol.TypeAnswer:
			if err := tc.AcceptAnswer(msg.Payload); err != nil {
				s.logger.Warn().Err(err).Msg("bad answer")
			}
		case protocol.TypeICECandidate:
			if err := tc.AddRemoteCandidate(msg.Candidate); err != nil {
				s.logger.Warn().Err(err).Msg("bad ice candidate")
			}
		}
	}
}

func (s *Session) setChannel(tc *TransferChannel) {
	s.mu.Lock()
	s.channel = tc
	s.mu.Unlock()
}

// teardown releases resources in the required order: leave-room first,
// then the transfer channel, then the relay socket.
func (s *Session) teardown() {
	s.mu.Lock()
	rc := s.relay
	tc := s.channel
	s.relay = nil
	s.channel = nil
	s.mu.Unlock()

	if rc != nil {
		_ = rc.Send(&protocol.Message{Type: protocol.TypeLeaveRoom}) // best effort
	}
	if tc != nil {
		_ = tc.Close()
	}
	if rc != nil {
		_ = rc.Close()
	}
}

// Reset unwinds the session back to StateIdle from any state.
func (s *Session) Reset() {
	s.teardown()
	s.mu.Lock()
	s.state = StateIdle
	s.lastErr = nil
	s.roomID = ""
	s.mu.Unlock()
}
