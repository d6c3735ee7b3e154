package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/protocol"
)

// ConnectTimeout bounds the wait for relay acknowledgments: the initial
// connected greeting and room create/join replies.
const ConnectTimeout = 10 * time.Second

// ErrRelayClosed is returned when the relay connection is gone.
var ErrRelayClosed = errors.New("relay connection closed")

// RelayConn is one client's websocket connection to the relay. Inbound
// frames are delivered on Messages; writes are serialized internally.
type RelayConn struct {
	ws       *websocket.Conn
	clientID string
	logger   zerolog.Logger

	writeMu  sync.Mutex
	incoming chan *protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
}

// DialRelay connects to the relay websocket endpoint and waits for the
// server's connected greeting carrying the minted client id.
func DialRelay(ctx context.Context, url string, logger zerolog.Logger) (*RelayConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	rc := &RelayConn{
		ws:       ws,
		logger:   logger.With().Str("component", "relay-conn").Logger(),
		incoming: make(chan *protocol.Message, 16),
		closed:   make(chan struct{}),
	}
	go rc.readLoop()

	msg, err := rc.Next(dialCtx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("await greeting: %w", err)
	}
	if msg.Type != protocol.TypeConnected || msg.ClientID == "" {
		rc.Close()
		return nil, fmt.Errorf("unexpected greeting %q", msg.Type)
	}
	rc.clientID = msg.ClientID
	rc.logger.Debug().Str("client_id", rc.clientID).Msg("relay connected")
	return rc, nil
}

// ClientID returns the server-minted peer id for this connection.
func (rc *RelayConn) ClientID() string {
	return rc.clientID
}

// Send writes one frame to the relay.
func (rc *RelayConn) Send(msg *protocol.Message) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	select {
	case <-rc.closed:
		return ErrRelayClosed
	default:
	}
	rc.ws.SetWriteDeadline(time.Now().Add(ConnectTimeout))
	return rc.ws.WriteJSON(msg)
}

// Next returns the next inbound frame, honoring context cancellation.
func (rc *RelayConn) Next(ctx context.Context) (*protocol.Message, error) {
	select {
	case msg, ok := <-rc.incoming:
		if !ok {
			return nil, ErrRelayClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the websocket. Safe to call more than once.
func (rc *RelayConn) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		close(rc.closed)
		rc.writeMu.Lock()
		_ = rc.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		rc.writeMu.Unlock()
		err = rc.ws.Close()
	})
	return err
}

func (rc *RelayConn) readLoop() {
	defer close(rc.incoming)
	for {
		_, data, err := rc.ws.ReadMessage()
		if err != nil {
			select {
			case <-rc.closed:
			default:
				rc.logger.Debug().Err(err).Msg("relay read loop ended")
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			rc.logger.Warn().Err(err).Msg("dropping malformed relay frame")
			continue
		}
		select {
		case rc.incoming <- msg:
		case <-rc.closed:
			return
		}
	}
}
