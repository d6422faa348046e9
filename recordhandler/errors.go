package recordhandler

import "errors"

var (
	// ErrListenerExists is returned by Listen when a listener is already
	// registered for the given pattern.
	ErrListenerExists = errors.New("recordhandler: listener already exists for pattern")

	// ErrNotListening is returned by Unlisten when no listener is
	// registered for the given pattern.
	ErrNotListening = errors.New("recordhandler: not listening on pattern")
)
