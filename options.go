package recsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/recsync/recsync-go/cache"
	"github.com/recsync/recsync-go/connection"
	"github.com/recsync/recsync-go/recordhandler"
)

// Options configures a Client.
type Options struct {
	Connection    []connection.Option
	Cache         cache.Cache
	PruneInterval time.Duration
	Logger        zerolog.Logger
}

// DefaultOptions returns an in-memory cache, the registry's default prune
// interval, and a no-op logger.
func DefaultOptions() Options {
	return Options{
		Cache:         cache.New(),
		PruneInterval: recordhandler.DefaultPruneInterval,
		Logger:        zerolog.Nop(),
	}
}

// Option mutates Options at construction time.
type Option func(*Options)

// WithConnectionOptions passes through options to the underlying
// connection.Connection.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(o *Options) { o.Connection = append(o.Connection, opts...) }
}

// WithCache overrides the seed cache records consult before their first
// server snapshot. Pass nil to disable seeding entirely.
func WithCache(c cache.Cache) Option {
	return func(o *Options) { o.Cache = c }
}

// WithPruneInterval overrides how often idle, ready records are swept out
// of the registry.
func WithPruneInterval(d time.Duration) Option {
	return func(o *Options) { o.PruneInterval = d }
}

// WithLogger sets the logger used by the connection, record, and registry
// layers alike.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
		o.Connection = append(o.Connection, connection.WithLogger(l))
	}
}
