// Package wsendpoint implements transport.Endpoint over gorilla/websocket.
//
// URL normalization follows the external-interfaces section of this
// client's specification: ws:// and wss:// are accepted, http(s):// is
// rejected, a schemeless or host-only URL defaults to ws://, and a default
// path is appended when the URL carries none.
package wsendpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/recsync/recsync-go/transport"
)

// DefaultDialer is the gorilla dialer used unless the caller supplies one
// via WithDialer. It mirrors the stock gorilla.DefaultDialer with
// compression enabled, the same adjustment this codebase's reference
// websocket client makes.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// DefaultPath is appended to a URL that has no path of its own.
const DefaultPath = "/recsync"

type Option func(*endpoint)

// WithDialer overrides the gorilla dialer used to open the connection.
func WithDialer(d *gorilla.Dialer) Option {
	return func(e *endpoint) { e.dialer = d }
}

// WithDefaultPath overrides DefaultPath.
func WithDefaultPath(path string) Option {
	return func(e *endpoint) { e.defaultPath = path }
}

type endpoint struct {
	conn    *gorilla.Conn
	dialer  *gorilla.Dialer
	handler transport.Handler

	defaultPath string

	writeMu sync.Mutex
	state   atomic.Int32

	socketCloseOnce sync.Once
	closeOnce       sync.Once
}

// Dial normalizes rawURL, opens a websocket connection and starts the read
// loop delivering events to handler. It implements transport.Dialer.
func Dial(rawURL string, handler transport.Handler, opts ...Option) (transport.Endpoint, error) {
	e := &endpoint{dialer: DefaultDialer, defaultPath: DefaultPath}
	for _, opt := range opts {
		opt(e)
	}

	normalized, err := normalizeURL(rawURL, e.defaultPath)
	if err != nil {
		return nil, err
	}

	conn, resp, err := e.dialer.DialContext(context.Background(), normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("wsendpoint: dial %s: %w", normalized, err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}

	e.conn = conn
	e.handler = handler
	e.state.Store(int32(transport.StateOpen))

	go e.readLoop(handler)
	handler.OnOpen()

	return e, nil
}

func (e *endpoint) readLoop(handler transport.Handler) {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			handler.OnError(err)
			e.notifyClosed()
			return
		}
		handler.OnMessage(data)
	}
}

// notifyClosed fires handler.OnClose exactly once, however the endpoint
// came to be closed: a local Close() call or the read loop noticing the
// peer went away. Both paths race to close the same underlying
// connection; closeOnce is what makes the handler callback itself
// race-free regardless of which one gets there first.
func (e *endpoint) notifyClosed() {
	e.closeOnce.Do(func() {
		e.state.Store(int32(transport.StateClosed))
		if e.handler != nil {
			e.handler.OnClose()
		}
	})
}

func (e *endpoint) Send(frame []byte) error {
	if transport.ReadyState(e.state.Load()) != transport.StateOpen {
		return errors.New("wsendpoint: send on non-open endpoint")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteMessage(gorilla.TextMessage, frame)
}

// Close initiates a graceful close and notifies handler.OnClose itself
// rather than waiting for the read loop to notice: the read loop may be
// scheduled arbitrarily late after the underlying socket is closed, and
// the connection state machine depends on OnClose firing promptly to
// land in CLOSED or start reconnecting.
func (e *endpoint) Close() error {
	var err error
	e.socketCloseOnce.Do(func() {
		e.state.Store(int32(transport.StateClosing))

		deadline := time.Now().Add(2 * time.Second)
		_ = e.conn.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline)

		err = e.conn.Close()
	})
	e.notifyClosed()
	return err
}

func (e *endpoint) ReadyState() transport.ReadyState {
	return transport.ReadyState(e.state.Load())
}

func normalizeURL(raw string, defaultPath string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		// already scheme-qualified
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return "", fmt.Errorf("wsendpoint: http(s) scheme not accepted: %s", raw)
	case strings.HasPrefix(raw, "//"):
		raw = "ws:" + raw
	default:
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("wsendpoint: parse %s: %w", raw, err)
	}

	if u.Path == "" {
		u.Path = defaultPath
	}

	return u.String(), nil
}
