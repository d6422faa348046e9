package connection

import "time"

// tryReconnect schedules another dial attempt after a linearly increasing
// delay, capped at MaxReconnectInterval. After MaxReconnectAttempts
// failures it emits eventMaxReconnectAttempts and gives up for good.
func (c *Connection) tryReconnect() {
	if c.reconnectAttempts >= c.opts.MaxReconnectAttempts {
		c.logger.Warn().Int("attempts", c.reconnectAttempts).Msg("giving up reconnecting")
		c.events.Emit(eventMaxReconnectAttempts, nil)
		c.deliberateClose = true
		c.setState(StateClosed)
		return
	}

	c.reconnectAttempts++
	delay := time.Duration(c.reconnectAttempts) * c.opts.ReconnectIntervalIncrement
	if delay > c.opts.MaxReconnectInterval {
		delay = c.opts.MaxReconnectInterval
	}

	c.setState(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			c.reconnectTimer = nil
			c.rawURL = c.originalURL
			if err := c.open(); err != nil {
				c.logger.Error().Err(err).Msg("reconnect attempt failed")
				c.tryReconnect()
			}
		})
	})
}

func (c *Connection) cancelReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
