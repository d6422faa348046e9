// Package loopback is an in-process transport.Endpoint pair used by the
// connection and record test suites to drive the state machine
// deterministically, without a real socket — the same role this
// codebase's in-process embedded connection plays for its own test suite.
package loopback

import (
	"sync"
	"sync/atomic"

	"github.com/recsync/recsync-go/transport"
)

// Pair is a connected client/server loopback. Server is a test harness's
// handle on "the other side"; Client is what gets handed to the code under
// test as a transport.Endpoint.
type Pair struct {
	Client *Endpoint
	Server *Endpoint
}

// New creates a connected pair. clientHandler receives events as if it
// were a real client-side socket; the returned Server lets a test act as
// the remote peer (send frames to the client, observe what the client
// sent, close the channel).
func New(clientHandler transport.Handler) *Pair {
	client := &Endpoint{}
	server := &Endpoint{}
	client.peer = server
	server.peer = client

	client.state.Store(int32(transport.StateOpen))
	server.state.Store(int32(transport.StateOpen))

	client.handler = clientHandler
	if clientHandler != nil {
		clientHandler.OnOpen()
	}

	return &Pair{Client: client, Server: server}
}

// Endpoint is one side of a loopback pair.
type Endpoint struct {
	mu      sync.Mutex
	peer    *Endpoint
	handler transport.Handler
	state   atomic.Int32

	sent [][]byte
}

// SetHandler installs the handler that receives frames sent by the peer.
// The server side of a Pair has none installed by default; tests that need
// to observe a handshake in both directions can install one.
func (e *Endpoint) SetHandler(h transport.Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Send delivers frame to the peer's handler and records it for
// inspection via Sent.
func (e *Endpoint) Send(frame []byte) error {
	if transport.ReadyState(e.state.Load()) != transport.StateOpen {
		return errClosed
	}

	e.mu.Lock()
	e.sent = append(e.sent, append([]byte(nil), frame...))
	peer := e.peer
	e.mu.Unlock()

	if peer != nil {
		peer.deliver(frame)
	}
	return nil
}

func (e *Endpoint) deliver(frame []byte) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h.OnMessage(frame)
	}
}

// Sent returns every frame this endpoint has sent to its peer, in order.
func (e *Endpoint) Sent() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.sent...)
}

// Close closes this endpoint and notifies both its own handler and the
// peer's, the loopback analogue of a real socket's local close (the
// caller's own read loop notices the closed connection) and the remote
// close the peer observes. It is idempotent.
func (e *Endpoint) Close() error {
	wasOpen := transport.ReadyState(e.state.Swap(int32(transport.StateClosed))) != transport.StateClosed

	e.mu.Lock()
	peer := e.peer
	h := e.handler
	e.mu.Unlock()

	if wasOpen && h != nil {
		h.OnClose()
	}

	if peer != nil {
		peer.mu.Lock()
		peerWasOpen := transport.ReadyState(peer.state.Swap(int32(transport.StateClosed))) != transport.StateClosed
		peerHandler := peer.handler
		peer.mu.Unlock()
		if peerWasOpen && peerHandler != nil {
			peerHandler.OnClose()
		}
	}
	return nil
}

func (e *Endpoint) ReadyState() transport.ReadyState {
	return transport.ReadyState(e.state.Load())
}

type closedError struct{}

func (closedError) Error() string { return "loopback: send on closed endpoint" }

var errClosed = closedError{}

var _ transport.Endpoint = (*Endpoint)(nil)
