// Package relay implements the rendezvous service: it matches peers into
// rooms and forwards their negotiation messages without ever seeing the
// transferred snapshot.
package relay

import (
	"errors"
	"sync"

	"github.com/worldlyfantasy/priospace-sub000/internal/config"
	"github.com/worldlyfantasy/priospace-sub000/internal/metrics"
	"github.com/worldlyfantasy/priospace-sub000/internal/protocol"
)

// Room and signaling error conditions, reported to clients verbatim.
var (
	ErrRoomFull     = errors.New("Room is full")
	ErrNotInRoom    = errors.New("Not in specified room")
	ErrPeerNotFound = errors.New("Target peer not found or disconnected")
)

// Sender delivers one frame to a connected peer. Implemented by the
// websocket connection wrapper; tests substitute their own.
type Sender interface {
	Send(msg *protocol.Message) error
	Terminate()
}

// Peer is one connected client. The id is minted by the server on connect
// and is the only identity the protocol exposes.
type Peer struct {
	ID   string
	Conn Sender

	room string // guarded by the owning Registry
}

// Registry is the single owner of all room and peer state. Every mutation
// goes through its method set under one mutex, so each operation is atomic
// with respect to every other; there are no per-room locks.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer
	rooms map[string]map[string]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
		rooms: make(map[string]map[string]*Peer),
	}
}

// AddPeer registers a newly connected peer.
func (r *Registry) AddPeer(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID] = p
	metrics.ConnectionsOpen.Set(float64(len(r.peers)))
}

// RemovePeer unregisters a peer, removing it from its room first. It
// returns the room left (if any) and the remaining members to notify.
// Disconnect cleanup and an explicit leave-room are the same operation.
func (r *Registry) RemovePeer(peerID string) (roomID string, remaining []*Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if ok {
		roomID, remaining = r.leaveLocked(p)
	}
	delete(r.peers, peerID)
	metrics.ConnectionsOpen.Set(float64(len(r.peers)))
	return roomID, remaining
}

// GetPeer returns a connected peer by id, or nil.
func (r *Registry) GetPeer(peerID string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[peerID]
}

// CreateRoom creates roomID with the caller as first member. If the room
// already exists the caller is joined to it instead; this join-on-collision
// behavior is a documented contract, not a fallback. The returned others
// slice holds the members present before the call (empty for a fresh room);
// prior holds members of a previous room the caller was detached from. A
// rejected call leaves any prior membership untouched.
func (r *Registry) CreateRoom(peerID, roomID string) (others, prior []*Peer, priorRoom string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return nil, nil, "", ErrPeerNotFound
	}
	if err := r.canJoinLocked(p, roomID); err != nil {
		return nil, nil, "", err
	}
	if p.room != "" && p.room != roomID {
		priorRoom, prior = r.leaveLocked(p)
	}
	others, err = r.joinLocked(p, roomID)
	return others, prior, priorRoom, err
}

// JoinRoom adds the caller to roomID, creating the room if absent and
// removing the caller from any prior room. Joining a room the caller is
// already in is idempotent, reported by already. prior holds the members of
// a previous room that still need a peer-left notice. A rejected call
// leaves any prior membership untouched.
func (r *Registry) JoinRoom(peerID, roomID string) (others []*Peer, prior []*Peer, priorRoom string, already bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return nil, nil, "", false, ErrPeerNotFound
	}
	if p.room == roomID {
		return nil, nil, "", true, nil
	}
	if err := r.canJoinLocked(p, roomID); err != nil {
		return nil, nil, "", false, err
	}
	if p.room != "" {
		priorRoom, prior = r.leaveLocked(p)
	}
	others, err = r.joinLocked(p, roomID)
	return others, prior, priorRoom, false, err
}

// canJoinLocked reports whether p could enter roomID, touching no state.
// Checked before detaching p from a prior room: a rejected switch must
// leave the prior membership intact. Caller holds r.mu.
func (r *Registry) canJoinLocked(p *Peer, roomID string) error {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	if _, in := members[p.ID]; in {
		return nil
	}
	if len(members) >= config.RoomCapacity {
		return ErrRoomFull
	}
	return nil
}

// joinLocked adds p to roomID, enforcing capacity. Caller holds r.mu.
func (r *Registry) joinLocked(p *Peer, roomID string) ([]*Peer, error) {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Peer)
		r.rooms[roomID] = members
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
	if _, in := members[p.ID]; in {
		return r.othersLocked(roomID, p.ID), nil
	}
	if len(members) >= config.RoomCapacity {
		return nil, ErrRoomFull
	}
	others := r.othersLocked(roomID, p.ID)
	members[p.ID] = p
	p.room = roomID
	return others, nil
}

// LeaveRoom removes the caller from its room, if any, and returns the room
// id and remaining members to notify.
func (r *Registry) LeaveRoom(peerID string) (roomID string, remaining []*Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return "", nil
	}
	return r.leaveLocked(p)
}

// leaveLocked detaches p from its room and deletes the room when it becomes
// empty. Caller holds r.mu.
func (r *Registry) leaveLocked(p *Peer) (string, []*Peer) {
	roomID := p.room
	if roomID == "" {
		return "", nil
	}
	p.room = ""
	members := r.rooms[roomID]
	delete(members, p.ID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		metrics.RoomsActive.Set(float64(len(r.rooms)))
		return roomID, nil
	}
	remaining := make([]*Peer, 0, len(members))
	for _, m := range members {
		remaining = append(remaining, m)
	}
	return roomID, remaining
}

// RoomOf returns the room the peer currently belongs to, empty if none.
func (r *Registry) RoomOf(peerID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		return p.room
	}
	return ""
}

// Others returns the members of roomID excluding excludeID.
func (r *Registry) Others(roomID, excludeID string) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.othersLocked(roomID, excludeID)
}

func (r *Registry) othersLocked(roomID, excludeID string) []*Peer {
	members := r.rooms[roomID]
	others := make([]*Peer, 0, len(members))
	for id, m := range members {
		if id != excludeID {
			others = append(others, m)
		}
	}
	return others
}

// Member returns the peer with targetID if it is a member of roomID.
func (r *Registry) Member(roomID, targetID string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[roomID]; ok {
		return members[targetID]
	}
	return nil
}

// AllPeers returns every connected peer. Used by the liveness sweep.
func (r *Registry) AllPeers() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// Counts returns the number of connected peers and active rooms.
func (r *Registry) Counts() (peers, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers), len(r.rooms)
}
