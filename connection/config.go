package connection

import (
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Connection. Use DefaultOptions and the With*
// functions rather than constructing it directly, so new fields can be
// added without breaking callers.
type Options struct {
	HeartbeatInterval  time.Duration
	HeartbeatTolerance float64

	ReconnectIntervalIncrement time.Duration
	MaxReconnectInterval       time.Duration
	MaxReconnectAttempts       int

	MaxMessagesPerPacket int
	SendDelay            time.Duration

	Logger zerolog.Logger
}

// DefaultOptions mirrors the reference realtime client's defaults: a 30s
// heartbeat, linear reconnect backoff capped at a minute, and outbound
// conflation into packets of up to 100 frames.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:  30 * time.Second,
		HeartbeatTolerance: 2,

		ReconnectIntervalIncrement: 4 * time.Second,
		MaxReconnectInterval:       60 * time.Second,
		MaxReconnectAttempts:       10,

		MaxMessagesPerPacket: 100,
		SendDelay:            10 * time.Millisecond,

		Logger: zerolog.Nop(),
	}
}

// Option mutates Options at construction time.
type Option func(*Options)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) { o.HeartbeatInterval = d }
}

// WithHeartbeatTolerance sets the multiplier on HeartbeatInterval before a
// silent connection is declared stale. Values below 2 are rejected by
// clamping to 2, since a tolerance under one heartbeat period would fail
// on ordinary network jitter.
func WithHeartbeatTolerance(tolerance float64) Option {
	return func(o *Options) {
		if tolerance < 2 {
			tolerance = 2
		}
		o.HeartbeatTolerance = tolerance
	}
}

func WithReconnectIntervalIncrement(d time.Duration) Option {
	return func(o *Options) { o.ReconnectIntervalIncrement = d }
}

func WithMaxReconnectInterval(d time.Duration) Option {
	return func(o *Options) { o.MaxReconnectInterval = d }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *Options) { o.MaxReconnectAttempts = n }
}

func WithMaxMessagesPerPacket(n int) Option {
	return func(o *Options) { o.MaxMessagesPerPacket = n }
}

func WithSendDelay(d time.Duration) Option {
	return func(o *Options) { o.SendDelay = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
