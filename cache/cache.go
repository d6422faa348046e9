// Package cache defines the optional pluggable store records consult to
// seed a tentative value before the server's initial snapshot arrives. It
// is never a substitute for the server round-trip: whatever it returns is
// unconditionally overwritten by the first UPDATE.
package cache

// Cache is an opaque key (record name) to value (decoded record data)
// store. The record layer never mutates what Get returns in place; it
// treats the returned value as a one-time seed for a fresh local tree.
type Cache interface {
	Get(name string) (any, bool)
	Put(name string, value any) error
}
