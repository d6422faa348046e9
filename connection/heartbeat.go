package connection

import (
	"time"

	"github.com/recsync/recsync-go/wire"
)

func (c *Connection) startHeartbeat() {
	c.lastHeartbeat = time.Now()
	stop := make(chan struct{})
	c.heartbeatStop = stop

	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.closed:
				return
			case <-ticker.C:
				c.post(c.checkHeartbeat)
			}
		}
	}()
}

func (c *Connection) stopHeartbeat() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// checkHeartbeat runs on the actor goroutine once per HeartbeatInterval.
// A silent connection beyond HeartbeatInterval*HeartbeatTolerance is
// declared stale and closed, handing off to the reconnect path; otherwise
// a PING is sent to provoke a PONG (or the server's own PING, which also
// resets the deadline).
func (c *Connection) checkHeartbeat() {
	if c.endpoint == nil {
		return
	}

	tolerance := time.Duration(float64(c.opts.HeartbeatInterval) * c.opts.HeartbeatTolerance)
	if time.Since(c.lastHeartbeat) > tolerance {
		c.logger.Warn().Msg("heartbeat timed out, closing")
		_ = c.endpoint.Close()
		return
	}

	c.sendDirect(wire.BuildMessage(wire.TopicConnection, wire.ActionPing, nil))
}
