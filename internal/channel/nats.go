package channel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
)

// subjectPrefix maps channel event names onto NATS subjects.
const subjectPrefix = "chat.client."

// NATS is the nats.go-backed Channel. Reconnection is delegated entirely to
// the NATS client; this wrapper only translates between event names and
// subjects and keeps the subscription table.
type NATS struct {
	url    string
	logger logger.Logger

	reg *registry

	mu         sync.Mutex
	conn       *nats.Conn
	inbound    chan *nats.Msg
	subMapping map[string]*nats.Subscription
}

func NewNATS(url string, logg logger.Logger) *NATS {
	return &NATS{
		url:        url,
		logger:     logg.WithModule("nats"),
		reg:        newRegistry(),
		subMapping: make(map[string]*nats.Subscription),
	}
}

func (n *NATS) On(event string, h Handler) {
	n.reg.on(event, h)
}

// Connect dials the NATS server and subscribes to every event that has a
// handler registered. Server events for one connection are delivered by a
// single dispatch goroutine so handler ordering matches registration order.
func (n *NATS) Connect() error {
	conn, err := nats.Connect(n.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warnf("connection lost: %v", err)
			}
			n.reg.dispatch(domain.EventDisconnect, nil)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.logger.Infof("reconnected")
			n.reg.dispatch(domain.EventConnect, nil)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	// Funnel every subscription through one goroutine to preserve handler
	// ordering across events.
	inbound := make(chan *nats.Msg, 256)
	n.mu.Lock()
	n.inbound = inbound
	n.mu.Unlock()
	go func() {
		for msg := range inbound {
			event := msg.Subject[len(subjectPrefix):]
			n.reg.dispatch(event, msg.Data)
		}
	}()

	n.mu.Lock()
	defer n.mu.Unlock()
	for event := range n.reg.handlers {
		if event == domain.EventConnect || event == domain.EventDisconnect {
			continue
		}
		subject := subjectPrefix + event
		if _, exists := n.subMapping[subject]; exists {
			continue
		}
		sub, err := conn.ChanSubscribe(subject, inbound)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		n.subMapping[subject] = sub
	}

	n.reg.dispatch(domain.EventConnect, nil)
	return nil
}

// Emit publishes one client event to its subject.
func (n *NATS) Emit(event string, payload interface{}) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("cannot emit %s: not connected", event)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s payload: %w", event, err)
	}
	if err := conn.Publish(subjectPrefix+event, data); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

// Disconnect unsubscribes everything and closes the connection.
func (n *NATS) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for subject, sub := range n.subMapping {
		_ = sub.Unsubscribe()
		delete(n.subMapping, subject)
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	if n.inbound != nil {
		close(n.inbound)
		n.inbound = nil
	}
	return nil
}
