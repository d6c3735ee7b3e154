package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/metrics"
	"github.com/worldlyfantasy/priospace-sub000/internal/protocol"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 64 * 1024 // negotiation frames only, never snapshot data
)

// Server accepts websocket connections and relays signaling messages
// between room members. All registry access is funneled through the
// Registry's own lock; per-connection writes are serialized by the
// connection wrapper.
type Server struct {
	registry *Registry
	logger   zerolog.Logger

	pingInterval time.Duration
	upgrader     websocket.Upgrader

	done chan struct{}
	once sync.Once
}

// NewServer creates a relay server. pingInterval drives the liveness sweep.
func NewServer(logger zerolog.Logger, pingInterval time.Duration) *Server {
	s := &Server{
		registry:     NewRegistry(),
		logger:       logger.With().Str("component", "relay").Logger(),
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers connect from app instances anywhere, same as the rest
			// of the API surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Registry exposes the room/peer state for health and stats endpoints.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close stops the liveness sweep and terminates all open connections.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
	for _, p := range s.registry.AllPeers() {
		p.Conn.Terminate()
	}
}

// conn wraps a websocket connection with a write lock (gorilla permits one
// concurrent writer) and the liveness flag the sweep inspects.
type conn struct {
	ws *websocket.Conn

	mu      sync.Mutex
	alive   bool
	sweeped bool
}

func (c *conn) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) Terminate() {
	c.ws.Close()
}

// markAlive records pong receipt (or any inbound traffic).
func (c *conn) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// checkAndPing returns false when the connection missed a full ping cycle.
// Otherwise it clears the flag and sends the next protocol-level ping.
func (c *conn) checkAndPing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sweeped && !c.alive {
		return false
	}
	c.sweeped = true
	c.alive = false
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.ws.WriteMessage(websocket.PingMessage, nil)
	return true
}

// HandleWS upgrades the request and runs the connection until it closes.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	peerID := ulid.Make().String()
	c := &conn{ws: ws, alive: true}
	peer := &Peer{ID: peerID, Conn: c}

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	s.registry.AddPeer(peer)
	metrics.ConnectionsTotal.Inc()
	s.logger.Info().Str("peer", peerID).Str("remote", r.RemoteAddr).Msg("peer connected")

	if err := c.Send(protocol.Connected(peerID)); err != nil {
		s.logger.Warn().Err(err).Str("peer", peerID).Msg("greeting failed")
		s.disconnect(peer)
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Err(err).Str("peer", peerID).Msg("peer connection lost")
			}
			break
		}
		c.markAlive()
		s.handleMessage(peer, data)
	}

	s.disconnect(peer)
}

// disconnect runs the same cleanup as an explicit leave-room.
func (s *Server) disconnect(peer *Peer) {
	roomID, remaining := s.registry.RemovePeer(peer.ID)
	peer.Conn.Terminate()
	if roomID != "" {
		s.broadcast(remaining, protocol.PeerLeft(peer.ID))
	}
	s.logger.Info().Str("peer", peer.ID).Str("room", roomID).Msg("peer disconnected")
}

// handleMessage dispatches one inbound frame. A fault in a single message
// is answered with an error frame and never tears down the connection.
func (s *Server) handleMessage(peer *Peer, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			s.sendError(peer, "Unknown message type")
		} else {
			s.sendError(peer, "Invalid message format")
		}
		return
	}

	switch {
	case msg.Type == protocol.TypeCreateRoom:
		s.handleCreateRoom(peer, msg)
	case msg.Type == protocol.TypeJoinRoom:
		s.handleJoinRoom(peer, msg)
	case msg.Type == protocol.TypeLeaveRoom:
		s.handleLeaveRoom(peer)
	case protocol.IsSignal(msg.Type):
		s.handleSignal(peer, msg)
	case msg.Type == protocol.TypePing:
		s.send(peer, protocol.Pong())
	default:
		// Well-formed server-originated tags arriving from a client are
		// still unknown in this direction.
		s.sendError(peer, "Unknown message type")
	}
}

func (s *Server) handleCreateRoom(peer *Peer, msg *protocol.Message) {
	if !protocol.ValidRoomCode(msg.RoomID) {
		s.sendError(peer, "Invalid room code")
		return
	}

	others, prior, priorRoom, err := s.registry.CreateRoom(peer.ID, msg.RoomID)
	if err != nil {
		s.sendError(peer, err.Error())
		return
	}
	if priorRoom != "" {
		s.broadcast(prior, protocol.PeerLeft(peer.ID))
	}

	s.send(peer, protocol.RoomCreated(msg.RoomID))
	s.logger.Info().Str("peer", peer.ID).Str("room", msg.RoomID).Int("present", len(others)).Msg("room created")

	// Join-on-collision: when the room already had members the caller gets
	// the current peers list and the members a join notice, exactly as if
	// it had joined.
	if len(others) > 0 {
		s.send(peer, protocol.PeersList(msg.RoomID, peerInfos(others)))
		s.broadcast(others, protocol.PeerJoined(peer.ID))
	}
}

func (s *Server) handleJoinRoom(peer *Peer, msg *protocol.Message) {
	if !protocol.ValidRoomCode(msg.RoomID) {
		s.sendError(peer, "Invalid room code")
		return
	}

	others, prior, priorRoom, already, err := s.registry.JoinRoom(peer.ID, msg.RoomID)
	if err != nil {
		s.sendError(peer, err.Error())
		return
	}
	if already {
		s.send(peer, protocol.RoomJoined(msg.RoomID))
		return
	}
	if priorRoom != "" {
		s.broadcast(prior, protocol.PeerLeft(peer.ID))
	}

	s.broadcast(others, protocol.PeerJoined(peer.ID))
	s.send(peer, protocol.RoomJoined(msg.RoomID))
	s.send(peer, protocol.PeersList(msg.RoomID, peerInfos(others)))
	s.logger.Info().Str("peer", peer.ID).Str("room", msg.RoomID).Msg("peer joined room")
}

func (s *Server) handleLeaveRoom(peer *Peer) {
	roomID, remaining := s.registry.LeaveRoom(peer.ID)
	if roomID != "" {
		s.broadcast(remaining, protocol.PeerLeft(peer.ID))
		s.logger.Info().Str("peer", peer.ID).Str("room", roomID).Msg("peer left room")
	}
	// Always acknowledged, even when the caller was in no room.
	s.send(peer, protocol.RoomLeft())
}

// handleSignal forwards offer/answer/ice-candidate frames. The sender must
// belong to the room it names; targeted frames go to one open connection,
// an ice-candidate without a target is broadcast to the rest of the room.
func (s *Server) handleSignal(peer *Peer, msg *protocol.Message) {
	if msg.RoomID == "" || s.registry.RoomOf(peer.ID) != msg.RoomID {
		s.sendError(peer, ErrNotInRoom.Error())
		return
	}

	// Stamp the sender so the recipient can address its reply.
	msg.From = peer.ID

	if msg.To != "" {
		target := s.registry.Member(msg.RoomID, msg.To)
		if target == nil {
			s.sendError(peer, ErrPeerNotFound.Error())
			return
		}
		if err := target.Conn.Send(msg); err != nil {
			s.sendError(peer, ErrPeerNotFound.Error())
			return
		}
		metrics.MessagesRelayed.WithLabelValues(msg.Type).Inc()
		return
	}

	if msg.Type != protocol.TypeICECandidate {
		// offer/answer are point-to-point; nothing sensible to broadcast.
		s.sendError(peer, ErrPeerNotFound.Error())
		return
	}
	s.broadcast(s.registry.Others(msg.RoomID, peer.ID), msg)
	metrics.MessagesRelayed.WithLabelValues(msg.Type).Inc()
}

func (s *Server) send(peer *Peer, msg *protocol.Message) {
	if err := peer.Conn.Send(msg); err != nil {
		s.logger.Warn().Err(err).Str("peer", peer.ID).Str("type", msg.Type).Msg("send failed")
	}
}

func (s *Server) sendError(peer *Peer, text string) {
	metrics.ProtocolErrors.WithLabelValues(text).Inc()
	s.send(peer, protocol.ErrorMessage(text))
}

func (s *Server) broadcast(peers []*Peer, msg *protocol.Message) {
	for _, p := range peers {
		s.send(p, msg)
	}
}

func peerInfos(peers []*Peer) []protocol.PeerInfo {
	infos := make([]protocol.PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = protocol.PeerInfo{ID: p.ID}
	}
	return infos
}

// sweepLoop pings every open connection each interval and terminates the
// ones that did not answer the previous ping. Closing the underlying
// websocket makes the read loop exit, which runs normal disconnect cleanup.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, p := range s.registry.AllPeers() {
				c, ok := p.Conn.(*conn)
				if !ok {
					continue
				}
				if !c.checkAndPing() {
					metrics.PingTerminations.Inc()
					s.logger.Warn().Str("peer", p.ID).Msg("ping timeout, terminating")
					c.Terminate()
				}
			}
		}
	}
}
