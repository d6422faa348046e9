package recsync

import (
	"context"

	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/record"
	"github.com/recsync/recsync-go/recordhandler"
	"github.com/recsync/recsync-go/transport"
	"github.com/recsync/recsync-go/transport/wsendpoint"
)

// Client is a connected recsync endpoint: one Connection and the record
// Registry built on top of it.
type Client struct {
	conn *connection.Connection
	reg  *recordhandler.Registry
}

// New dials url (ws:// or wss://) and returns a Client once the dial
// itself has been attempted; the handshake and authentication proceed
// asynchronously and are observed through OnStateChange or by calling
// Authenticate.
func New(url string, opts ...Option) (*Client, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dial := func(rawURL string, h transport.Handler) (transport.Endpoint, error) {
		return wsendpoint.Dial(rawURL, h)
	}
	conn := connection.New(url, dial, o.Connection...)
	reg := recordhandler.New(conn, o.Cache, o.Logger, o.PruneInterval)

	if err := conn.Open(); err != nil {
		reg.Stop()
		return nil, err
	}

	return &Client{conn: conn, reg: reg}, nil
}

// Authenticate submits credentials and reports the outcome through cb.
func (c *Client) Authenticate(params any, cb connection.AuthCallback) {
	c.conn.Authenticate(params, cb)
}

// State returns the connection's current state.
func (c *Client) State() connection.State {
	return c.conn.State()
}

// OnStateChange registers fn to run on every connection state
// transition. The returned function removes the registration.
func (c *Client) OnStateChange(fn func(connection.State)) func() {
	return c.conn.OnStateChange(fn)
}

// OnMaxReconnectAttemptsReached registers fn to run once reconnection is
// abandoned after exhausting the configured attempts. The returned
// function removes the registration.
func (c *Client) OnMaxReconnectAttemptsReached(fn func()) func() {
	return c.conn.OnMaxReconnectAttemptsReached(fn)
}

// OnProtocolError registers fn to run for every protocol-level error
// condition reported by the server.
func (c *Client) OnProtocolError(fn func(connection.ErrorEvent)) func() {
	return c.conn.OnProtocolError(fn)
}

// Errors returns the channel record-topic errors (other than
// MESSAGE_DENIED) are published on.
func (c *Client) Errors() <-chan recordhandler.ErrorEvent {
	return c.reg.Errors()
}

// Record acquires a Handle on the named record, creating it on first
// access. Callers must Discard the returned Handle when done with it.
func (c *Client) Record(name string) *record.Handle {
	return c.reg.GetRecord(name)
}

// Observe returns a lazily-backed Observable over name's root value.
func (c *Client) Observe(name string) *recordhandler.Observable {
	return c.reg.Observe(name)
}

// Listen registers cb to be asked about every record name matching
// pattern, current and future.
func (c *Client) Listen(pattern string, cb recordhandler.ListenCallback) error {
	return c.reg.Listen(pattern, cb)
}

// Unlisten stops cb from being asked about pattern.
func (c *Client) Unlisten(pattern string) error {
	return c.reg.Unlisten(pattern)
}

// Get is a one-shot convenience that acquires name, waits for it to
// become ready, reads path, and releases it.
func (c *Client) Get(ctx context.Context, name, path string) (any, error) {
	return c.reg.Get(ctx, name, path)
}

// SetRoot is a one-shot convenience that acquires name, waits for it to
// become ready, replaces its value, and releases it.
func (c *Client) SetRoot(ctx context.Context, name string, value any) error {
	return c.reg.SetRoot(ctx, name, value)
}

// SetPath is a one-shot convenience that acquires name, waits for it to
// become ready, writes value at path, and releases it.
func (c *Client) SetPath(ctx context.Context, name, path string, value any) error {
	return c.reg.SetPath(ctx, name, path, value)
}

// Update is a one-shot convenience that acquires name, waits for it to
// become ready, applies fn to its current root value, writes the result
// back, and releases it.
func (c *Client) Update(ctx context.Context, name string, fn recordhandler.Updater) error {
	return c.reg.Update(ctx, name, fn)
}

// Close shuts down the registry's idle pruner and closes the underlying
// connection. No reconnect follows.
func (c *Client) Close() {
	c.reg.Stop()
	c.conn.Close()
}
