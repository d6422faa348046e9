package connection

import "errors"

// ErrConnectionClosed is returned by Authenticate when a terminal
// handshake failure (too many auth attempts, a denied challenge, or an
// authentication timeout) has already closed the connection for good.
var ErrConnectionClosed = errors.New("connection: closed")
