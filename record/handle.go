package record

import "context"

// Handle is a reference-counted reference to a Record. Multiple Handles
// may refer to the same Record; Discard releases one reference but does
// not necessarily destroy it — destruction is the registry's job, run
// once usages reaches zero and the record is ready.
type Handle struct {
	r *Record
}

// NewHandle wraps r, incrementing its usage count. Called by the
// registry; consumers obtain Handles through it, not directly.
func NewHandle(r *Record) *Handle {
	r.IncUsage()
	return &Handle{r: r}
}

func (h *Handle) Name() string { return h.r.Name() }

func (h *Handle) Get(path string) (any, error) { return h.r.Get(path) }

// HasData reports whether the record holds any data yet, the same gate
// Subscribe uses to decide whether a triggerNow callback fires.
func (h *Handle) HasData() bool { return h.r.HasData() }

func (h *Handle) SetRoot(value any) error { return h.r.SetRoot(value) }

func (h *Handle) SetPath(path string, value any) error { return h.r.SetPath(path, value) }

func (h *Handle) Subscribe(path string, cb Callback, triggerNow bool) (SubscriptionID, error) {
	return h.r.Subscribe(path, cb, triggerNow)
}

func (h *Handle) Unsubscribe(id SubscriptionID) { h.r.Unsubscribe(id) }

func (h *Handle) WhenReady(ctx context.Context) error { return h.r.WhenReady(ctx) }

// Discard releases this handle's reference. It does not destroy the
// underlying Record.
func (h *Handle) Discard() { h.r.DecUsage() }

// Record exposes the underlying Record for the registry's own
// bookkeeping (pruning, listener dispatch). Ordinary consumers should
// use the Handle methods instead.
func (h *Handle) Record() *Record { return h.r }
