package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
)

const reconnectWait = 2 * time.Second

// envelope is the wire frame: every websocket message is one named event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Websocket is the gorilla-backed Channel. One read pump dispatches server
// events; writes are serialized by a mutex. When the connection drops the
// pump redials with a fixed wait until Disconnect is called, synthesizing
// disconnect/connect events around each outage.
type Websocket struct {
	url    string
	logger logger.Logger

	reg *registry

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewWebsocket builds a websocket channel for the given server base URL
// (http or https); the token authenticates the connection.
func NewWebsocket(serverURL, token string, logg logger.Logger) (*Websocket, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return &Websocket{
		url:    u.String(),
		logger: logg.WithModule("websocket"),
		reg:    newRegistry(),
		done:   make(chan struct{}),
	}, nil
}

func (w *Websocket) On(event string, h Handler) {
	w.reg.on(event, h)
}

// Connect dials the server. The initial dial is synchronous so callers learn
// immediately whether the server is reachable; after that the read pump owns
// the connection and redials on its own.
func (w *Websocket) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket server: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	connID := uuid.NewString()
	w.logger.Infof("connected (conn=%s)", connID)
	w.reg.dispatch(domain.EventConnect, nil)

	go w.readPump(conn, connID)
	return nil
}

func (w *Websocket) readPump(conn *websocket.Conn, connID string) {
	for {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				w.mu.Lock()
				closed := w.closed
				w.mu.Unlock()
				if !closed {
					w.logger.Warnf("connection lost (conn=%s): %v", connID, err)
				}
				break
			}
			if env.Event == "" {
				w.logger.Debugf("dropping frame without event name")
				continue
			}
			w.reg.dispatch(env.Event, env.Data)
		}

		w.reg.dispatch(domain.EventDisconnect, nil)

		// Redial until Disconnect is called.
		for {
			select {
			case <-w.done:
				return
			case <-time.After(reconnectWait):
			}

			next, _, err := websocket.DefaultDialer.Dial(w.url, nil)
			if err != nil {
				w.logger.Debugf("reconnect attempt failed: %v", err)
				continue
			}

			w.mu.Lock()
			w.conn = next
			w.mu.Unlock()

			conn = next
			connID = uuid.NewString()
			w.logger.Infof("reconnected (conn=%s)", connID)
			w.reg.dispatch(domain.EventConnect, nil)
			break
		}
	}
}

// Emit sends one client event. It fails when the channel is not currently
// connected; the caller decides whether that matters.
func (w *Websocket) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s payload: %w", event, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil || w.closed {
		return fmt.Errorf("cannot emit %s: not connected", event)
	}
	if err := w.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

// Disconnect closes the connection and stops the reconnect loop.
func (w *Websocket) Disconnect() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	close(w.done)
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
