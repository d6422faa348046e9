package recordhandler_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/recordhandler"
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

func updateFrame(name string, v version.Token, json string, prev version.Token) []byte {
	data := []string{name, v.String(), json}
	if !prev.IsZero() {
		data = append(data, prev.String())
	}
	return wire.BuildMessage(wire.TopicRecord, wire.ActionUpdate, data)
}

func TestGetRecordReusesExistingRecord(t *testing.T) {
	conn, _ := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), time.Hour)
	defer reg.Stop()

	h1 := reg.GetRecord("foo")
	h2 := reg.GetRecord("foo")

	assert.Same(t, h1.Record(), h2.Record())
	assert.Equal(t, int32(2), h1.Record().Usages())

	h1.Discard()
	h2.Discard()
}

func TestPruneIdleDestroysZeroUsageReadyRecords(t *testing.T) {
	conn, pair := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), 20*time.Millisecond)
	defer reg.Stop()

	h := reg.GetRecord("foo")
	pair.Server.Send(updateFrame("foo", version.New(1), `{"a":1}`, version.Zero))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.WhenReady(ctx))

	h.Discard()

	require.Eventually(t, func() bool {
		return h.Record().IsDestroyed()
	}, time.Second, 5*time.Millisecond)
}

func TestPruneIdleLeavesActiveRecordsAlone(t *testing.T) {
	conn, _ := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), 20*time.Millisecond)
	defer reg.Stop()

	h := reg.GetRecord("foo")
	defer h.Discard()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, h.Record().IsDestroyed())
}

func TestRegistryGetSetConvenience(t *testing.T) {
	conn, pair := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), time.Hour)
	defer reg.Stop()

	go func() {
		pair.Server.Send(updateFrame("foo", version.New(1), `{"count":1}`, version.Zero))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	val, err := reg.Get(ctx, "foo", "count")
	require.NoError(t, err)
	assert.Equal(t, float64(1), val)

	require.NoError(t, reg.SetPath(ctx, "foo", "count", float64(2)))

	val, err = reg.Get(ctx, "foo", "count")
	require.NoError(t, err)
	assert.Equal(t, float64(2), val)

	require.NoError(t, reg.Update(ctx, "foo", func(cur any) (any, error) {
		m, _ := cur.(map[string]any)
		out := map[string]any{}
		for k, v := range m {
			out[k] = v
		}
		out["count"] = float64(99)
		return out, nil
	}))

	val, err = reg.Get(ctx, "foo", "count")
	require.NoError(t, err)
	assert.Equal(t, float64(99), val)
}

func TestObserveDeliversCurrentValueToEachNewWatcher(t *testing.T) {
	conn, pair := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), time.Hour)
	defer reg.Stop()

	obs := reg.Observe("foo")

	var firstGot []any
	unsub1 := obs.Subscribe(func(v any) { firstGot = append(firstGot, v) })
	assert.Empty(t, firstGot)

	pair.Server.Send(updateFrame("foo", version.New(1), `{"x":1}`, version.Zero))
	require.Eventually(t, func() bool { return len(firstGot) == 1 }, time.Second, 5*time.Millisecond)

	var secondGot []any
	unsub2 := obs.Subscribe(func(v any) { secondGot = append(secondGot, v) })
	require.Len(t, secondGot, 1)

	unsub1()
	unsub2()
}

func TestListenAcceptsAndUnlistenRoundTrips(t *testing.T) {
	conn, pair := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), time.Hour)
	defer reg.Stop()

	var got string
	require.NoError(t, reg.Listen("foo/.*", func(name string, isSubscribed bool) bool {
		got = name
		return true
	}))

	require.Eventually(t, func() bool { return len(pair.Client.Sent()) > 0 }, time.Second, 5*time.Millisecond)

	pair.Server.Send(wire.BuildMessage(wire.TopicRecord, wire.ActionSubscriptionForPatternFound, []string{"foo/.*", "foo/1"}))
	require.Eventually(t, func() bool { return got == "foo/1" }, time.Second, 5*time.Millisecond)

	err := reg.Listen("foo/.*", func(string, bool) bool { return true })
	assert.ErrorIs(t, err, recordhandler.ErrListenerExists)

	require.NoError(t, reg.Unlisten("foo/.*"))
	pair.Server.Send(wire.BuildMessage(wire.TopicRecord, wire.ActionAck, []string{string(wire.ActionUnlisten), "foo/.*"}))

	require.Eventually(t, func() bool {
		return reg.Unlisten("foo/.*") == recordhandler.ErrNotListening
	}, time.Second, 5*time.Millisecond)
}

func TestUnlistenUnknownPatternErrors(t *testing.T) {
	conn, _ := newOpenConnection(t)
	reg := recordhandler.New(conn, nil, zerolog.Nop(), time.Hour)
	defer reg.Stop()

	assert.ErrorIs(t, reg.Unlisten("nope"), recordhandler.ErrNotListening)
}
