package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/record"
	"github.com/recsync/recsync-go/transport"
	"github.com/recsync/recsync-go/transport/loopback"
	"github.com/recsync/recsync-go/version"
	"github.com/recsync/recsync-go/wire"
)

func newOpenConnection(t *testing.T) (*connection.Connection, *loopback.Pair) {
	t.Helper()

	pairs := make(chan *loopback.Pair, 1)
	dial := func(url string, h transport.Handler) (transport.Endpoint, error) {
		pair := loopback.New(h)
		pairs <- pair
		return pair.Client, nil
	}

	conn := connection.New("ws://test", dial)
	require.NoError(t, conn.Open())
	pair := <-pairs

	pair.Server.Send(wire.BuildMessage(wire.TopicConnection, wire.ActionAck, nil))
	require.Eventually(t, func() bool { return conn.State() == connection.StateAwaitingAuthentication }, time.Second, 5*time.Millisecond)

	conn.Authenticate(nil, nil)
	require.Eventually(t, func() bool { return len(pair.Client.Sent()) > 0 }, time.Second, 5*time.Millisecond)

	pair.Server.Send(wire.BuildMessage(wire.TopicAuth, wire.ActionAck, nil))
	require.Eventually(t, func() bool { return conn.State() == connection.StateOpen }, time.Second, 5*time.Millisecond)

	return conn, pair
}

// waitForFlushedRead blocks until the READ a record sends on creation has
// reached the wire, so later frame counts only see what the test provokes.
func waitForFlushedRead(t *testing.T, pair *loopback.Pair) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, f := range pair.Client.Sent() {
			for _, m := range wire.ParseMessages(f) {
				if m.Topic == wire.TopicRecord && m.Action == wire.ActionRead {
					return true
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func updateFrame(name string, v version.Token, json string, prev version.Token) wire.Message {
	data := []string{name, v.String(), json}
	if !prev.IsZero() {
		data = append(data, prev.String())
	}
	msgs := wire.ParseMessages(wire.BuildMessage(wire.TopicRecord, wire.ActionUpdate, data))
	return msgs[0]
}

func TestRecordBecomesReadyOnFirstUpdate(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"a":1}`, version.Zero))

	require.True(t, rec.IsReady())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.WhenReady(ctx))

	val, err := rec.Get("a")
	require.NoError(t, err)
	assert.Equal(t, float64(1), val)
}

func TestPatchQueueReconcilesAgainstInitialSnapshot(t *testing.T) {
	conn, pair := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())
	waitForFlushedRead(t, pair)

	require.NoError(t, rec.SetPath("count", float64(5)))
	require.False(t, rec.IsReady())

	before := len(pair.Client.Sent())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1,"other":"x"}`, version.Zero))

	require.True(t, rec.IsReady())

	count, err := rec.Get("count")
	require.NoError(t, err)
	assert.Equal(t, float64(5), count)

	other, err := rec.Get("other")
	require.NoError(t, err)
	assert.Equal(t, "x", other)

	require.Eventually(t, func() bool { return len(pair.Client.Sent()) > before }, time.Second, 5*time.Millisecond)
	sent := pair.Client.Sent()
	msgs := wire.ParseMessages(sent[len(sent)-1])
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.ActionUpdate, msgs[0].Action)
}

func TestSubscribeTriggerNowAndChangeNotification(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))

	var got []any
	_, err := rec.Subscribe("count", func(v any) { got = append(got, v) }, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, float64(1), got[0])

	require.NoError(t, rec.SetPath("count", float64(2)))
	require.Len(t, got, 2)
	assert.Equal(t, float64(2), got[1])
}

func TestSetRootNoopSendsNoUpdate(t *testing.T) {
	conn, pair := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())
	waitForFlushedRead(t, pair)

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))
	before := len(pair.Client.Sent())

	require.NoError(t, rec.SetRoot(map[string]any{"count": float64(1)}))

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, pair.Client.Sent(), before, "SetRoot with an unchanged value must not dispatch an UPDATE")
}

func TestSetRootChangeSendsUpdateAndNotifies(t *testing.T) {
	conn, pair := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))

	var got []any
	_, err := rec.Subscribe("count", func(v any) { got = append(got, v) }, false)
	require.NoError(t, err)

	before := len(pair.Client.Sent())
	require.NoError(t, rec.SetRoot(map[string]any{"count": float64(2)}))

	require.Len(t, got, 1)
	assert.Equal(t, float64(2), got[0])

	require.Eventually(t, func() bool { return len(pair.Client.Sent()) > before }, time.Second, 5*time.Millisecond)
}

func TestStaleUpdateIsDropped(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))

	stale := version.Token{Counter: 0, Nonce: "zzzzzzzzzzzzzzzz"}
	rec.HandleMessage(updateFrame("foo", stale, `{"count":99}`, version.Zero))

	val, err := rec.Get("count")
	require.NoError(t, err)
	assert.Equal(t, float64(1), val)
}

func TestRemoteUpdateNotifiesSubscribersOnRealChange(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))

	var got []any
	_, err := rec.Subscribe("count", func(v any) { got = append(got, v) }, false)
	require.NoError(t, err)

	rec.HandleMessage(updateFrame("foo", version.New(2), `{"count":2}`, version.New(1)))
	require.Len(t, got, 1)
	assert.Equal(t, float64(2), got[0])

	// An identical remote update must not trigger a spurious notification.
	rec.HandleMessage(updateFrame("foo", version.New(3), `{"count":2}`, version.New(2)))
	assert.Len(t, got, 1)
}

type fakeCache struct {
	values map[string]any
}

func (f *fakeCache) Get(name string) (any, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f *fakeCache) Put(name string, value any) error {
	f.values[name] = value
	return nil
}

func TestCacheSeedSupersededByFirstUpdate(t *testing.T) {
	conn, _ := newOpenConnection(t)
	c := &fakeCache{values: map[string]any{"foo": map[string]any{"count": float64(999)}}}
	rec := record.New("foo", conn, c, zerolog.Nop())

	seeded, err := rec.Get("count")
	require.NoError(t, err)
	assert.Equal(t, float64(999), seeded)
	assert.False(t, rec.IsReady())

	rec.HandleMessage(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))

	val, err := rec.Get("count")
	require.NoError(t, err)
	assert.Equal(t, float64(1), val)
}

func TestDestroyedRecordRejectsSubscribe(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	rec.Destroy()

	_, err := rec.Subscribe("count", func(any) {}, true)
	assert.ErrorIs(t, err, record.ErrDestroyed)

	_, err = rec.Get("count")
	assert.ErrorIs(t, err, record.ErrDestroyed)
}

func TestDiscardDoesNotDestroy(t *testing.T) {
	conn, _ := newOpenConnection(t)
	rec := record.New("foo", conn, nil, zerolog.Nop())

	h := record.NewHandle(rec)
	assert.Equal(t, int32(1), rec.Usages())
	h.Discard()
	assert.Equal(t, int32(0), rec.Usages())
	assert.False(t, rec.IsDestroyed())
}
