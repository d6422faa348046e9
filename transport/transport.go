// Package transport defines the duplex message-channel abstraction the
// connection state machine depends on, so that state machine never talks
// to gorilla/websocket (or any other real socket) directly.
package transport

// ReadyState mirrors the small set of states a websocket-like endpoint can
// report, the same vocabulary the browser WebSocket readyState uses.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Handler receives the endpoint's lifecycle events. Connection installs one
// Handler per Endpoint at construction time; an Endpoint implementation
// must not call back into Handler concurrently with itself (one delivery
// goroutine per Endpoint is sufficient).
type Handler interface {
	OnOpen()
	OnMessage(frame []byte)
	OnError(err error)
	OnClose()
}

// Endpoint is the duplex text-frame channel the core requires: Send queues
// (or immediately writes) a frame, Close ends the channel for good, and
// ReadyState reports whether Send is currently meaningful.
type Endpoint interface {
	Send(frame []byte) error
	Close() error
	ReadyState() ReadyState
}

// Dialer opens a new Endpoint bound to url and wires handler to it. The
// connection package depends only on this function type, letting tests
// substitute transport/loopback for a real socket.
type Dialer func(url string, handler Handler) (Endpoint, error)
