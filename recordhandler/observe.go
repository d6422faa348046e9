package recordhandler

import (
	"sync"

	"github.com/recsync/recsync-go/record"
)

// Observable is a lazily-backed, multi-subscriber view onto a record's
// root value. The underlying Handle is acquired on the first watcher and
// discarded once the last watcher unsubscribes, so an Observable with no
// watchers holds no reference on the record.
type Observable struct {
	reg  *Registry
	name string

	mu       sync.Mutex
	handle   *record.Handle
	subID    record.SubscriptionID
	watchers map[uint64]record.Callback
	nextID   uint64
}

// Observe returns an Observable over name. It does not acquire a record
// reference until the first call to Subscribe.
func (reg *Registry) Observe(name string) *Observable {
	return &Observable{reg: reg, name: name, watchers: make(map[uint64]record.Callback)}
}

// Subscribe registers cb to be called with every new root value. If the
// record already holds a value, cb is invoked synchronously with it
// before Subscribe returns; otherwise cb is not called until the first
// value arrives. The returned function unsubscribes cb.
func (o *Observable) Subscribe(cb record.Callback) func() {
	o.mu.Lock()

	if o.handle == nil {
		o.handle = o.reg.GetRecord(o.name)
		o.subID, _ = o.handle.Subscribe("", o.fanOut, false)
	}

	id := o.nextID
	o.nextID++
	o.watchers[id] = cb

	hasData := o.handle.HasData()
	var current any
	if hasData {
		current, _ = o.handle.Get("")
	}
	o.mu.Unlock()

	if hasData {
		cb(current)
	}

	return func() { o.unsubscribe(id) }
}

func (o *Observable) fanOut(v any) {
	o.mu.Lock()
	cbs := make([]record.Callback, 0, len(o.watchers))
	for _, cb := range o.watchers {
		cbs = append(cbs, cb)
	}
	o.mu.Unlock()

	for _, cb := range cbs {
		cb(v)
	}
}

func (o *Observable) unsubscribe(id uint64) {
	o.mu.Lock()
	delete(o.watchers, id)
	lastOne := len(o.watchers) == 0
	var h *record.Handle
	if lastOne {
		h = o.handle
		o.handle = nil
	}
	o.mu.Unlock()

	if h != nil {
		h.Unsubscribe(o.subID)
		h.Discard()
	}
}
