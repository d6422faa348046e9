package recordhandler

import (
	"sync"

	"github.com/recsync/recsync-go/wire"
)

// ListenCallback decides whether the caller wants to provide data for a
// record name matching the listener's pattern. Returning true signals
// acceptance; the caller is then expected to populate the record (via
// Registry.SetRoot/SetPath) for as long as it wants to keep providing it.
type ListenCallback func(name string, isSubscribed bool) bool

// Listener tracks one pattern-based provider registration. It is
// destroyed in two phases: Unlisten sends UNLISTEN and marks itself
// pending; the Listener is only removed from the registry's map once the
// matching ACK arrives, so a late SP/SR for the pattern during the
// in-flight unlisten still has somewhere to land.
type Listener struct {
	pattern string
	cb      ListenCallback

	mu      sync.Mutex
	pending bool
}

// Listen registers cb to be asked about every current and future record
// name matching pattern. Only one listener may be active per pattern at
// a time.
func (reg *Registry) Listen(pattern string, cb ListenCallback) error {
	reg.mu.Lock()
	if _, exists := reg.listeners[pattern]; exists {
		reg.mu.Unlock()
		return ErrListenerExists
	}
	l := &Listener{pattern: pattern, cb: cb}
	reg.listeners[pattern] = l
	reg.mu.Unlock()

	reg.conn.SendMsg(wire.TopicRecord, wire.ActionListen, []string{pattern})
	return nil
}

// Unlisten stops cb from being asked about pattern. The pattern remains
// registered until the server acknowledges the UNLISTEN, so a match that
// races the request is still delivered.
func (reg *Registry) Unlisten(pattern string) error {
	reg.mu.Lock()
	l, exists := reg.listeners[pattern]
	reg.mu.Unlock()
	if !exists {
		return ErrNotListening
	}

	l.mu.Lock()
	l.pending = true
	l.mu.Unlock()

	reg.conn.SendMsg(wire.TopicRecord, wire.ActionUnlisten, []string{pattern})
	return nil
}

func (reg *Registry) dispatchListenerMatch(msg wire.Message) {
	if len(msg.Data) < 1 {
		return
	}
	pattern, name := msg.Data[0], ""
	if len(msg.Data) > 1 {
		name = msg.Data[1]
	}

	reg.mu.RLock()
	l, ok := reg.listeners[pattern]
	reg.mu.RUnlock()
	if !ok {
		return
	}

	switch msg.Action {
	case wire.ActionSubscriptionForPatternFound:
		accepted := l.cb(name, true)
		ack := "false"
		if accepted {
			ack = "true"
		}
		reg.conn.SendMsg(wire.TopicRecord, wire.ActionAck, []string{string(wire.ActionListen), pattern, name, ack})
	case wire.ActionSubscriptionForPatternRemoved:
		l.cb(name, false)
	}
}

func (reg *Registry) completeUnlisten(msg wire.Message) {
	if len(msg.Data) < 2 {
		return
	}
	pattern := msg.Data[1]

	reg.mu.Lock()
	l, ok := reg.listeners[pattern]
	if ok {
		delete(reg.listeners, pattern)
	}
	reg.mu.Unlock()

	if ok {
		l.mu.Lock()
		l.pending = false
		l.mu.Unlock()
	}
}
