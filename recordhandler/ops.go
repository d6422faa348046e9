package recordhandler

import "context"

// Updater computes the next value for a record given its current one.
type Updater func(current any) (any, error)

// Get acquires name, waits for it to become ready, reads path, and
// releases the record.
func (reg *Registry) Get(ctx context.Context, name, path string) (any, error) {
	h := reg.GetRecord(name)
	defer h.Discard()

	if err := h.WhenReady(ctx); err != nil {
		return nil, err
	}
	return h.Get(path)
}

// SetRoot acquires name, waits for it to become ready, replaces its
// value, and releases the record.
func (reg *Registry) SetRoot(ctx context.Context, name string, value any) error {
	h := reg.GetRecord(name)
	defer h.Discard()

	if err := h.WhenReady(ctx); err != nil {
		return err
	}
	return h.SetRoot(value)
}

// SetPath acquires name, waits for it to become ready, writes value at
// path, and releases the record.
func (reg *Registry) SetPath(ctx context.Context, name, path string, value any) error {
	h := reg.GetRecord(name)
	defer h.Discard()

	if err := h.WhenReady(ctx); err != nil {
		return err
	}
	return h.SetPath(path, value)
}

// Update acquires name, waits for it to become ready, applies fn to its
// current root value, writes the result back, and releases the record.
func (reg *Registry) Update(ctx context.Context, name string, fn Updater) error {
	h := reg.GetRecord(name)
	defer h.Discard()

	if err := h.WhenReady(ctx); err != nil {
		return err
	}

	current, err := h.Get("")
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	return h.SetRoot(next)
}
