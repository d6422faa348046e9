// Package record implements the per-record state machine: subscribe,
// offline patch queue, version reconciliation, and change notification.
package record

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/recsync/recsync-go/cache"
	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/internal/events"
	"github.com/recsync/recsync-go/jsonpath"
	"github.com/recsync/recsync-go/version"
	"github.com/recsync/recsync-go/wire"
)

type eventName string

const (
	eventReady              eventName = "ready"
	eventDestroy            eventName = "destroy"
	eventHasProviderChanged eventName = "has_provider_changed"
)

// DestroyEvent accompanies the destroy event so a listener (the
// registry, the client shell) can tell whether data was lost: a record
// destroyed while still unready, or with a non-empty patch queue, had
// local writes that were never acknowledged by the server.
type DestroyEvent struct {
	Name       string
	WasUnready bool
}

type patchEntry struct {
	hasPath bool
	path    string
	data    any
}

// Record is the client-side state for one named document: its current
// value, version, subscriptions, and the patch queue accumulated before
// the server's initial snapshot arrives.
type Record struct {
	name   string
	conn   *connection.Connection
	cache  cache.Cache
	logger zerolog.Logger

	mu           sync.Mutex
	data         any
	version      version.Token
	hasProvider  bool
	isReady      bool
	isSubscribed bool
	isDestroyed  bool
	patchQueue   []patchEntry

	subs      map[SubscriptionID]subscription
	nextSubID SubscriptionID

	usages int32

	readyCh     chan struct{}
	destroyedCh chan struct{}
	readyOnce   sync.Once
	destroyOnce sync.Once

	unsubState func()
	events     events.Emitter[eventName, any]
}

// New creates a Record, seeds it from c if present, and immediately
// sends READ(name). c may be nil to disable seeding.
func New(name string, conn *connection.Connection, c cache.Cache, logger zerolog.Logger) *Record {
	r := &Record{
		name:         name,
		conn:         conn,
		cache:        c,
		logger:       logger,
		subs:         make(map[SubscriptionID]subscription),
		isSubscribed: true,
		readyCh:      make(chan struct{}),
		destroyedCh:  make(chan struct{}),
	}

	if c != nil {
		if seed, ok := c.Get(name); ok {
			r.data = seed
		}
	}

	r.unsubState = conn.OnStateChange(r.onConnectionStateChanged)
	conn.SendMsg(wire.TopicRecord, wire.ActionRead, []string{name})

	return r
}

// Name returns the record's name.
func (r *Record) Name() string { return r.name }

// IncUsage and DecUsage maintain the reference count the registry uses
// to decide when a Record is eligible for pruning. Discard (on Handle)
// calls DecUsage but never destroys: destruction is the registry's job.
func (r *Record) IncUsage()      { atomic.AddInt32(&r.usages, 1) }
func (r *Record) DecUsage()      { atomic.AddInt32(&r.usages, -1) }
func (r *Record) Usages() int32  { return atomic.LoadInt32(&r.usages) }

// IsReady reports whether the first UPDATE has been applied.
func (r *Record) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isReady
}

// IsDestroyed reports whether destroy has run.
func (r *Record) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDestroyed
}

// Get reads the value at path from the local snapshot.
func (r *Record) Get(path string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isDestroyed {
		return nil, ErrDestroyed
	}
	v, _, err := jsonpath.Get(r.data, path)
	return v, err
}

// SetRoot replaces the entire document.
func (r *Record) SetRoot(value any) error {
	return r.set("", value, true)
}

// SetPath writes value at path, creating intermediate containers as
// needed.
func (r *Record) SetPath(path string, value any) error {
	return r.set(path, value, false)
}

func (r *Record) set(path string, value any, isRoot bool) error {
	r.mu.Lock()

	if r.isDestroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}

	if !r.isReady {
		if isRoot {
			r.patchQueue = r.patchQueue[:0]
			r.patchQueue = append(r.patchQueue, patchEntry{data: value})
		} else {
			r.patchQueue = append(r.patchQueue, patchEntry{hasPath: true, path: path, data: value})
		}
	}

	old := r.data
	var newData any
	var unchanged bool
	if isRoot {
		newData, unchanged = jsonpath.Patch(old, value)
	} else {
		newData, unchanged = jsonpath.Set(old, path, value)
		unchanged = !unchanged
	}

	if unchanged {
		r.mu.Unlock()
		return nil
	}

	r.data = newData
	if r.isReady {
		r.dispatchUpdateLocked()
	}
	subs := r.snapshotSubsLocked()
	r.mu.Unlock()

	r.notify(subs, old, newData)
	return nil
}

// dispatchUpdateLocked must be called with mu held and isReady true. It
// mints the next version, sends UPDATE, and adopts the new version
// locally.
func (r *Record) dispatchUpdateLocked() {
	prev := r.version
	next := prev.Next()
	r.version = next

	encoded, err := json.Marshal(r.data)
	if err != nil {
		r.logger.Error().Err(err).Str("record", r.name).Msg("encode update payload")
		return
	}

	data := []string{r.name, next.String(), string(encoded)}
	if !prev.IsZero() {
		data = append(data, prev.String())
	}
	r.conn.SendMsg(wire.TopicRecord, wire.ActionUpdate, data)
}

// Subscribe registers cb to run whenever the value at path changes. If
// triggerNow is set and the record already holds data, cb runs once
// synchronously with the current value before Subscribe returns. It
// fails with ErrDestroyed if the record has already been destroyed.
func (r *Record) Subscribe(path string, cb Callback, triggerNow bool) (SubscriptionID, error) {
	r.mu.Lock()
	if r.isDestroyed {
		r.mu.Unlock()
		return 0, ErrDestroyed
	}

	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = subscription{path: path, cb: cb}

	var triggerVal any
	shouldTrigger := triggerNow && r.data != nil
	if shouldTrigger {
		triggerVal, _, _ = jsonpath.Get(r.data, path)
	}
	r.mu.Unlock()

	if shouldTrigger {
		invoke(cb, triggerVal)
	}
	return id, nil
}

// HasData reports whether the record holds any data yet, regardless of
// whether it has reached ready (a seeded-from-cache record may hold data
// before its first server snapshot arrives).
func (r *Record) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data != nil
}

// Unsubscribe removes a registration made by Subscribe.
func (r *Record) Unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// WhenReady resolves once the record becomes ready, resolves
// immediately if it already is, and returns ErrDestroyed if the record
// is destroyed first, or ctx.Err() if ctx expires first.
func (r *Record) WhenReady(ctx context.Context) error {
	r.mu.Lock()
	ready := r.isReady
	destroyed := r.isDestroyed
	readyCh := r.readyCh
	destroyedCh := r.destroyedCh
	r.mu.Unlock()

	if destroyed {
		return ErrDestroyed
	}
	if ready {
		return nil
	}

	select {
	case <-readyCh:
		return nil
	case <-destroyedCh:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnDestroy registers fn to run once the record is destroyed.
func (r *Record) OnDestroy(fn func(DestroyEvent)) func() {
	return r.events.On(eventDestroy, func(p any) {
		if e, ok := p.(DestroyEvent); ok {
			fn(e)
		}
	})
}

// OnHasProviderChanged registers fn to run whenever the server reports a
// change in provider availability for this record.
func (r *Record) OnHasProviderChanged(fn func(bool)) func() {
	return r.events.On(eventHasProviderChanged, func(p any) {
		if v, ok := p.(bool); ok {
			fn(v)
		}
	})
}

// HandleMessage processes one inbound RECORD-topic message already
// confirmed to address this record by name.
func (r *Record) HandleMessage(msg wire.Message) {
	switch msg.Action {
	case wire.ActionUpdate:
		r.applyInboundUpdate(msg.Data)
	case wire.ActionSubscriptionHasProvider:
		r.applyProviderFlag(msg.Data)
	}
}

func (r *Record) applyInboundUpdate(data []string) {
	if len(data) < 3 {
		r.logger.Warn().Str("record", r.name).Msg("malformed UPDATE frame")
		return
	}

	newVersion, err := version.Parse(data[1])
	if err != nil {
		r.logger.Warn().Err(err).Str("record", r.name).Msg("malformed version token")
		return
	}

	var incoming any
	if err := json.Unmarshal([]byte(data[2]), &incoming); err != nil {
		r.logger.Warn().Err(err).Str("record", r.name).Msg("malformed update payload")
		return
	}

	r.mu.Lock()

	if !r.isReady {
		merged := incoming
		for _, entry := range r.patchQueue {
			if entry.hasPath {
				merged, _ = jsonpath.Set(merged, entry.path, entry.data)
			} else {
				merged, _ = jsonpath.Patch(merged, entry.data)
			}
		}
		r.patchQueue = nil

		old := r.data
		r.data = merged
		r.version = newVersion
		r.isReady = true
		reconciled := !identical(merged, incoming)
		subs := r.snapshotSubsLocked()
		r.mu.Unlock()

		r.readyOnce.Do(func() { close(r.readyCh) })
		r.events.Emit(eventReady, nil)
		r.notify(subs, old, merged)

		if reconciled {
			r.mu.Lock()
			r.dispatchUpdateLocked()
			r.mu.Unlock()
			if r.cache != nil {
				if err := r.cache.Put(r.name, merged); err != nil {
					r.logger.Warn().Err(err).Str("record", r.name).Msg("cache put failed")
				}
			}
		}
		return
	}

	if !version.GreaterThan(newVersion, r.version) {
		r.mu.Unlock()
		r.logger.Debug().Str("record", r.name).Str("version", newVersion.String()).Msg("dropped stale update")
		return
	}

	old := r.data
	merged, unchanged := jsonpath.Patch(old, incoming)
	r.version = newVersion
	r.data = merged
	subs := r.snapshotSubsLocked()
	r.mu.Unlock()

	if !unchanged {
		r.notify(subs, old, merged)
	}
}

func (r *Record) applyProviderFlag(data []string) {
	if len(data) < 2 {
		return
	}

	flag, err := wire.DecodeTyped(data[1])
	if err != nil {
		r.logger.Warn().Err(err).Str("record", r.name).Msg("malformed provider flag")
		return
	}
	hasProvider, _ := flag.(bool)

	r.mu.Lock()
	changed := r.hasProvider != hasProvider
	r.hasProvider = hasProvider
	r.mu.Unlock()

	if changed {
		r.events.Emit(eventHasProviderChanged, hasProvider)
	}
}

func (r *Record) onConnectionStateChanged(s connection.State) {
	switch s {
	case connection.StateOpen:
		r.mu.Lock()
		wasSubscribed := r.isSubscribed
		r.isSubscribed = true
		r.mu.Unlock()
		if !wasSubscribed {
			r.conn.SendMsg(wire.TopicRecord, wire.ActionRead, []string{r.name})
		}

	case connection.StateReconnecting:
		r.mu.Lock()
		r.isSubscribed = false
		r.mu.Unlock()

	case connection.StateClosed:
		r.destroy()
	}
}

// destroy sends UNSUBSCRIBE if still subscribed, clears state, and
// emits destroy. It is idempotent and meant to be called only by the
// registry's idle pruner or a terminal connection close, never through
// Handle.
func (r *Record) destroy() {
	r.destroyOnce.Do(func() {
		r.mu.Lock()
		wasUnready := !r.isReady
		subscribed := r.isSubscribed
		r.isDestroyed = true
		r.isSubscribed = false
		r.mu.Unlock()

		if subscribed {
			r.conn.SendMsg(wire.TopicRecord, wire.ActionUnsubscribe, []string{r.name})
		}

		r.unsubState()
		close(r.destroyedCh)
		r.events.Emit(eventDestroy, DestroyEvent{Name: r.name, WasUnready: wasUnready})
	})
}

// Destroy runs destroy. Exported so the registry (a different package)
// can invoke it; ordinary consumers reach a Record only through Handle,
// which exposes Discard instead.
func (r *Record) Destroy() { r.destroy() }

func (r *Record) snapshotSubsLocked() []subscription {
	out := make([]subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

func (r *Record) notify(subs []subscription, old, new any) {
	for _, s := range subs {
		oldVal, _, _ := jsonpath.Get(old, s.path)
		newVal, _, _ := jsonpath.Get(new, s.path)
		if !identical(oldVal, newVal) {
			invoke(s.cb, newVal)
		}
	}
}

func invoke(cb Callback, v any) {
	defer func() { _ = recover() }()
	cb(v)
}
