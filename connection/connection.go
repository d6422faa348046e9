// Package connection owns a transport.Endpoint and runs the realtime
// client's connection state machine: authentication handshake, challenge
// and redirect, heartbeat liveness, a conflating send buffer, and
// reconnect with linear backoff.
//
// Every mutation of the state machine's fields is serialized through a
// single actor goroutine (run), the preemptive-runtime analogue of the
// single-threaded cooperative scheduler a client like this would use on
// a source platform without real goroutines. Transport callbacks
// (OnOpen/OnMessage/OnError/OnClose) arrive on whatever goroutine the
// Endpoint implementation delivers them on and are immediately handed
// to the actor via post, so no two state mutations ever race.
package connection

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/recsync/recsync-go/internal/events"
	"github.com/recsync/recsync-go/transport"
	"github.com/recsync/recsync-go/wire"
)

// AuthCallback is invoked once per Authenticate call with the server's
// response. data carries the raw fields of the AUTH ACK/ERROR frame.
type AuthCallback func(success bool, data []string, err error)

// MessageHandler receives every inbound message whose topic is neither
// CONNECTION nor AUTH — the client shell wires this to the record
// registry's dispatch.
type MessageHandler func(wire.Message)

// ErrorEvent is emitted for protocol-level conditions: ERROR frames from
// the server and terminal handshake failures.
type ErrorEvent struct {
	Topic wire.Topic
	Code  wire.EventCode
	Data  []string
}

// Connection is a single logical connection to a realtime endpoint,
// including its own reconnect lifecycle. The zero value is not usable;
// construct with New.
type Connection struct {
	dial transport.Dialer

	rawURL      string
	originalURL string

	opts   Options
	logger zerolog.Logger

	id uuid.UUID

	cmds      chan func()
	closed    chan struct{}
	closeOnce sync.Once

	onMessage MessageHandler
	events    events.Emitter[eventName, any]

	state       State
	stateAtomic atomic.Int32

	endpoint transport.Endpoint

	redirecting         bool
	deliberateClose     bool
	challengeDenied     bool
	tooManyAuthAttempts bool
	authTimedOut        bool

	authParams   any
	authCallback AuthCallback

	heartbeatStop chan struct{}
	lastHeartbeat time.Time

	sendQueue [][]byte
	sendTimer *time.Timer

	reconnectAttempts int
	reconnectTimer    *time.Timer
}

// New constructs a Connection bound to rawURL, dialed through dial. The
// actor goroutine starts immediately; Open must still be called to
// establish the first transport connection.
func New(rawURL string, dial transport.Dialer, opts ...Option) *Connection {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.Must(uuid.NewV4())

	c := &Connection{
		id:          id,
		dial:        dial,
		rawURL:      rawURL,
		originalURL: rawURL,
		opts:        o,
		logger:      o.Logger.With().Str("conn_id", id.String()).Logger(),
		cmds:        make(chan func(), 64),
		closed:      make(chan struct{}),
	}

	go c.run()
	return c
}

// ID returns the connection's correlation id, stable for its lifetime
// (including across reconnects), used to tie its log lines together.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// SetMessageHandler installs the callback for non-CONNECTION/AUTH
// messages. It must be called before Open.
func (c *Connection) SetMessageHandler(h MessageHandler) {
	c.onMessage = h
}

// run is the actor goroutine every state mutation is serialized through.
// It returns once c.closed is signaled by Close, but first drains
// whatever is already queued in c.cmds: a command posted synchronously
// from within the very closure that signals the close (handleClose,
// triggered by endpoint.Close() inside Close's own posted function) must
// still run rather than being silently dropped by a select that happened
// to favor the now-ready c.closed case.
func (c *Connection) run() {
	for {
		select {
		case cmd := <-c.cmds:
			cmd()
		case <-c.closed:
			for {
				select {
				case cmd := <-c.cmds:
					cmd()
				default:
					return
				}
			}
		}
	}
}

func (c *Connection) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.closed:
	}
}

// State returns the current state. Safe to call from any goroutine.
func (c *Connection) State() State {
	return State(c.stateAtomic.Load())
}

// OnStateChange registers fn to run on every state transition. The
// returned function removes the registration.
func (c *Connection) OnStateChange(fn func(State)) func() {
	return c.events.On(eventStateChanged, func(payload any) {
		if s, ok := payload.(State); ok {
			fn(s)
		}
	})
}

// OnMaxReconnectAttemptsReached registers fn to run once reconnection is
// abandoned after exhausting MaxReconnectAttempts.
func (c *Connection) OnMaxReconnectAttemptsReached(fn func()) func() {
	return c.events.On(eventMaxReconnectAttempts, func(any) { fn() })
}

// OnProtocolError registers fn to run for every protocol-level error
// condition: ERROR frames from the server and terminal handshake
// failures.
func (c *Connection) OnProtocolError(fn func(ErrorEvent)) func() {
	return c.events.On(eventProtocolError, func(payload any) {
		if e, ok := payload.(ErrorEvent); ok {
			fn(e)
		}
	})
}

// Open dials the endpoint. It returns any error the dialer itself
// reports; subsequent handshake progress is reported through
// OnStateChange.
func (c *Connection) Open() error {
	errCh := make(chan error, 1)
	c.post(func() { errCh <- c.open() })
	return <-errCh
}

func (c *Connection) open() error {
	c.deliberateClose = false
	ep, err := c.dial(c.rawURL, c)
	if err != nil {
		return fmt.Errorf("connection: dial: %w", err)
	}
	c.endpoint = ep
	return nil
}

// Close deliberately closes the connection. No reconnect follows. It
// also stops the actor goroutine started by New; the Connection must not
// be used afterward. Close is safe to call more than once; only the
// first call does any work.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		done := make(chan struct{})
		c.post(func() {
			c.deliberateClose = true
			c.flush()
			c.cancelSendTimer()
			c.cancelReconnectTimer()
			if c.endpoint != nil {
				_ = c.endpoint.Close()
			}
			close(done)
		})
		<-done
		close(c.closed)
	})
}

// Authenticate stores credentials and, once the handshake has reached
// AWAITING_AUTHENTICATION, submits them immediately. If the connection
// was previously closed it is reopened first, unless a terminal failure
// flag (too many attempts, challenge denied, authentication timeout) is
// already set, in which case cb is invoked with ErrConnectionClosed and no
// transport activity occurs. cb always runs on the actor goroutine, so
// Authenticate may return before it does.
func (c *Connection) Authenticate(params any, cb AuthCallback) {
	c.post(func() {
		c.authParams = params
		c.authCallback = cb

		if c.tooManyAuthAttempts || c.challengeDenied || c.authTimedOut {
			if cb != nil {
				cb(false, nil, ErrConnectionClosed)
			}
			return
		}

		if c.State() == StateClosed {
			if err := c.open(); err != nil {
				if cb != nil {
					cb(false, nil, err)
				}
				return
			}
		}

		if c.State() == StateAwaitingAuthentication {
			c.sendAuthRequest()
		}
	})
}

func (c *Connection) sendAuthRequest() {
	payload, err := wire.EncodeTyped(c.authParams)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode auth params")
		return
	}
	c.sendDirect(wire.BuildMessage(wire.TopicAuth, wire.ActionRequest, []string{payload}))
	c.setState(StateAuthenticating)
}

func (c *Connection) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.stateAtomic.Store(int32(s))
	c.logger.Debug().Stringer("state", s).Msg("connection state changed")
	c.events.Emit(eventStateChanged, s)
}

func (c *Connection) reportError(topic wire.Topic, code wire.EventCode, data []string) {
	c.logger.Warn().Str("topic", string(topic)).Str("code", string(code)).Msg("protocol error")
	c.events.Emit(eventProtocolError, ErrorEvent{Topic: topic, Code: code, Data: data})
}

// --- transport.Handler ---

var _ transport.Handler = (*Connection)(nil)

func (c *Connection) OnOpen() {
	c.post(c.handleOpen)
}

func (c *Connection) OnMessage(frame []byte) {
	c.post(func() { c.handleFrame(frame) })
}

func (c *Connection) OnError(err error) {
	c.post(func() { c.handleTransportError(err) })
}

func (c *Connection) OnClose() {
	c.post(c.handleClose)
}

func (c *Connection) handleOpen() {
	c.stopHeartbeat()
	c.reconnectAttempts = 0
	c.setState(StateAwaitingConnection)
	c.startHeartbeat()
}

func (c *Connection) handleTransportError(err error) {
	c.cancelSendTimer()
	c.logger.Error().Err(err).Msg("transport error")
	c.setState(StateError)
}

func (c *Connection) handleClose() {
	c.stopHeartbeat()

	switch {
	case c.redirecting:
		c.redirecting = false
		if err := c.open(); err != nil {
			c.reportError(wire.TopicConnection, "", []string{err.Error()})
		}
	case c.deliberateClose:
		c.setState(StateClosed)
	default:
		c.tryReconnect()
	}
}

func (c *Connection) handleFrame(frame []byte) {
	for _, msg := range wire.ParseMessages(frame) {
		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg wire.Message) {
	switch msg.Topic {
	case wire.TopicConnection:
		c.handleConnectionMessage(msg)
	case wire.TopicAuth:
		c.handleAuthMessage(msg)
	default:
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Connection) handleConnectionMessage(msg wire.Message) {
	switch msg.Action {
	case wire.ActionChallenge:
		c.setState(StateChallenging)
		c.sendDirect(wire.BuildMessage(wire.TopicConnection, wire.ActionChallengeResponse, []string{c.originalURL}))

	case wire.ActionAck:
		c.setState(StateAwaitingAuthentication)
		if c.authParams != nil {
			c.sendAuthRequest()
		}

	case wire.ActionRedirect:
		if len(msg.Data) > 0 {
			c.redirecting = true
			c.rawURL = msg.Data[0]
			if c.endpoint != nil {
				_ = c.endpoint.Close()
			}
		}

	case wire.ActionRejection:
		c.challengeDenied = true
		c.deliberateClose = true
		if c.endpoint != nil {
			_ = c.endpoint.Close()
		}

	case wire.ActionError:
		code := firstEventCode(msg.Data)
		if code == wire.EventConnectionAuthenticationTimeout {
			c.authTimedOut = true
			c.deliberateClose = true
			if c.endpoint != nil {
				_ = c.endpoint.Close()
			}
		}
		c.reportError(wire.TopicConnection, code, msg.Data)

	case wire.ActionPing:
		c.lastHeartbeat = time.Now()
		c.sendDirect(wire.BuildMessage(wire.TopicConnection, wire.ActionPong, nil))

	case wire.ActionPong:
		c.lastHeartbeat = time.Now()
	}
}

func (c *Connection) handleAuthMessage(msg wire.Message) {
	switch msg.Action {
	case wire.ActionAck:
		c.setState(StateOpen)
		c.flush()
		if cb := c.authCallback; cb != nil {
			cb(true, msg.Data, nil)
		}

	case wire.ActionError:
		code := firstEventCode(msg.Data)
		if code == wire.EventTooManyAuthAttempts {
			c.tooManyAuthAttempts = true
			c.deliberateClose = true
			if c.endpoint != nil {
				_ = c.endpoint.Close()
			}
		} else {
			c.setState(StateAwaitingAuthentication)
		}
		if cb := c.authCallback; cb != nil {
			cb(false, msg.Data, fmt.Errorf("connection: auth error %s", code))
		}
	}
}

func firstEventCode(data []string) wire.EventCode {
	if len(data) == 0 {
		return ""
	}
	return wire.EventCode(data[0])
}

// sendDirect writes a protocol-internal frame (handshake, heartbeat)
// straight to the endpoint, bypassing the conflating send buffer: these
// frames must go out regardless of whether the connection has reached
// OPEN, which is exactly the state Send's buffer is gated on.
func (c *Connection) sendDirect(frame []byte) {
	if c.endpoint == nil || c.endpoint.ReadyState() != transport.StateOpen {
		return
	}
	if err := c.endpoint.Send(frame); err != nil {
		c.logger.Error().Err(err).Msg("write failed")
	}
}
