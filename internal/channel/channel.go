// Package channel provides the realtime duplex connection to the chat
// server. Callers register handlers for named server events, emit named
// client events, and never deal with retries: each transport carries its own
// reconnect policy.
package channel

import "encoding/json"

// Handler receives the raw payload of one server event.
type Handler func(data json.RawMessage)

// Channel is the duplex event connection. Handlers must be registered before
// Connect; for a given event they fire in registration order, all from a
// single dispatch goroutine.
//
// The synthetic "connect" and "disconnect" events fire with an empty payload
// whenever the underlying transport comes up or drops, including on
// automatic reconnects.
type Channel interface {
	Connect() error
	Emit(event string, payload interface{}) error
	On(event string, h Handler)
	Disconnect() error
}

// registry is the shared handler table used by both transports.
type registry struct {
	handlers map[string][]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]Handler)}
}

func (r *registry) on(event string, h Handler) {
	r.handlers[event] = append(r.handlers[event], h)
}

// dispatch calls every handler for the event in registration order.
func (r *registry) dispatch(event string, data json.RawMessage) {
	for _, h := range r.handlers[event] {
		h(data)
	}
}
