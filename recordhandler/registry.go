// Package recordhandler maintains the registry of live records: it
// bridges the asynchronous record lifecycle to a reference-counted
// Handle, prunes idle records, routes inbound RECORD-topic traffic, and
// offers a one-shot get/set/update convenience layer plus an Observable
// stream.
package recordhandler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/recsync/recsync-go/cache"
	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/record"
	"github.com/recsync/recsync-go/wire"
)

// DefaultPruneInterval is how often the idle pruner scans the registry
// when the caller doesn't override it.
const DefaultPruneInterval = 10 * time.Second

// ErrorEvent is forwarded for record-topic protocol errors other than
// MESSAGE_DENIED, and for a record silently lost on terminal connection
// close while still unready (CLIENT_OFFLINE).
type ErrorEvent struct {
	Topic wire.Topic
	Code  wire.EventCode
	Name  string
}

type entry struct {
	name string
	rec  *record.Record
}

// Registry owns every live Record, keyed by name, with an auxiliary
// ordered slice so the idle pruner can scan and remove in O(1) per
// removal via swap-and-pop, updating the name-to-position index as it
// goes.
type Registry struct {
	mu    sync.RWMutex
	index map[string]int
	order []entry

	listeners map[string]*Listener

	conn   *connection.Connection
	cache  cache.Cache
	logger zerolog.Logger

	pruneInterval time.Duration
	stopPrune     chan struct{}
	pruneDone     chan struct{}

	errorChan chan ErrorEvent
}

// New creates a Registry bound to conn, seeding new records from c (which
// may be nil). It installs itself as conn's message handler, so conn must
// not already have one, and starts the idle pruner goroutine.
func New(conn *connection.Connection, c cache.Cache, logger zerolog.Logger, pruneInterval time.Duration) *Registry {
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}

	reg := &Registry{
		index:         make(map[string]int),
		listeners:     make(map[string]*Listener),
		conn:          conn,
		cache:         c,
		logger:        logger,
		pruneInterval: pruneInterval,
		stopPrune:     make(chan struct{}),
		pruneDone:     make(chan struct{}),
		errorChan:     make(chan ErrorEvent, 64),
	}

	conn.SetMessageHandler(reg.Dispatch)
	go reg.runPruner()

	return reg
}

// Errors returns the channel ErrorEvents are published on. The channel is
// buffered; a consumer that doesn't drain it will see events logged and
// dropped rather than blocking the registry.
func (reg *Registry) Errors() <-chan ErrorEvent {
	return reg.errorChan
}

// Stop shuts down the idle pruner. It does not destroy any records.
func (reg *Registry) Stop() {
	close(reg.stopPrune)
	<-reg.pruneDone
}

// GetRecord returns a Handle on the named record, creating it on first
// access. Every call increments the record's usage count; callers must
// Discard the returned Handle when done with it.
func (reg *Registry) GetRecord(name string) *record.Handle {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if i, ok := reg.index[name]; ok {
		return record.NewHandle(reg.order[i].rec)
	}

	rec := record.New(name, reg.conn, reg.cache, reg.logger)
	rec.OnDestroy(func(ev record.DestroyEvent) { reg.onRecordDestroyed(ev) })

	reg.index[name] = len(reg.order)
	reg.order = append(reg.order, entry{name: name, rec: rec})

	return record.NewHandle(rec)
}

func (reg *Registry) onRecordDestroyed(ev record.DestroyEvent) {
	reg.mu.Lock()
	reg.removeLocked(ev.Name)
	reg.mu.Unlock()

	if ev.WasUnready {
		reg.emitError(wire.TopicRecord, wire.EventClientOffline, ev.Name)
	}
}

// removeLocked must be called with mu held.
func (reg *Registry) removeLocked(name string) {
	i, ok := reg.index[name]
	if !ok {
		return
	}

	last := len(reg.order) - 1
	reg.order[i] = reg.order[last]
	reg.index[reg.order[i].name] = i
	reg.order = reg.order[:last]
	delete(reg.index, name)
}

func (reg *Registry) runPruner() {
	defer close(reg.pruneDone)

	ticker := time.NewTicker(reg.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.stopPrune:
			return
		case <-ticker.C:
			reg.pruneIdle()
		}
	}
}

// pruneIdle destroys every record with zero usages that has reached
// ready, the only records eligible for destruction per the registry's
// invariant. It collects victims under the lock, then destroys them
// outside it, since Record.Destroy synchronously fires OnDestroy which
// re-enters the registry to remove itself.
func (reg *Registry) pruneIdle() {
	reg.mu.Lock()
	var victims []*record.Record

	i := 0
	for i < len(reg.order) {
		rec := reg.order[i].rec
		if rec.Usages() == 0 && rec.IsReady() {
			victims = append(victims, rec)
			name := reg.order[i].name
			last := len(reg.order) - 1
			reg.order[i] = reg.order[last]
			reg.index[reg.order[i].name] = i
			reg.order = reg.order[:last]
			delete(reg.index, name)
			continue
		}
		i++
	}
	reg.mu.Unlock()

	for _, rec := range victims {
		rec.Destroy()
	}
}

func (reg *Registry) emitError(topic wire.Topic, code wire.EventCode, name string) {
	select {
	case reg.errorChan <- ErrorEvent{Topic: topic, Code: code, Name: name}:
	default:
		reg.logger.Warn().Str("name", name).Str("code", string(code)).Msg("error channel full, dropping event")
	}
}

// Dispatch routes one inbound message to the record or listener it
// addresses. It is installed as the connection's MessageHandler and runs
// on the connection's actor goroutine.
func (reg *Registry) Dispatch(msg wire.Message) {
	if msg.Topic != wire.TopicRecord {
		return
	}

	switch msg.Action {
	case wire.ActionSubscriptionForPatternFound, wire.ActionSubscriptionForPatternRemoved:
		reg.dispatchListenerMatch(msg)
		return
	case wire.ActionError:
		reg.handleRecordError(msg)
		return
	case wire.ActionAck:
		if len(msg.Data) > 0 && msg.Data[0] == string(wire.ActionUnlisten) {
			reg.completeUnlisten(msg)
			return
		}
	}

	name := recordNameFromMessage(msg)
	if name == "" {
		return
	}

	reg.mu.RLock()
	i, ok := reg.index[name]
	var rec *record.Record
	if ok {
		rec = reg.order[i].rec
	}
	reg.mu.RUnlock()

	if rec != nil {
		rec.HandleMessage(msg)
	}
}

func (reg *Registry) handleRecordError(msg wire.Message) {
	name := recordNameFromMessage(msg)
	code := firstEventCode(msg.Data)
	if code == wire.EventMessageDenied {
		return
	}
	reg.emitError(wire.TopicRecord, code, name)
}

func firstEventCode(data []string) wire.EventCode {
	if len(data) == 0 {
		return ""
	}
	return wire.EventCode(data[0])
}

func recordNameFromMessage(msg wire.Message) string {
	switch msg.Action {
	case wire.ActionAck, wire.ActionError:
		if len(msg.Data) > 1 {
			return msg.Data[1]
		}
		return ""
	default:
		if len(msg.Data) > 0 {
			return msg.Data[0]
		}
		return ""
	}
}
