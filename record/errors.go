package record

import "errors"

// ErrDestroyed is returned by any operation attempted against a
// destroyed Record.
var ErrDestroyed = errors.New("record: destroyed")
