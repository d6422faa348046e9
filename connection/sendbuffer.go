package connection

import (
	"bytes"
	"time"

	"github.com/recsync/recsync-go/transport"
	"github.com/recsync/recsync-go/wire"
)

// Send queues frame for delivery, conflating it with any other frames
// enqueued before the next flush. Flushing happens immediately once the
// queue reaches MaxMessagesPerPacket, or after SendDelay otherwise.
func (c *Connection) Send(frame []byte) {
	c.post(func() { c.enqueue(frame) })
}

// SendMsg is sugar over wire.BuildMessage followed by Send.
func (c *Connection) SendMsg(topic wire.Topic, action wire.Action, data []string) {
	c.Send(wire.BuildMessage(topic, action, data))
}

func (c *Connection) enqueue(frame []byte) {
	c.sendQueue = append(c.sendQueue, frame)

	if len(c.sendQueue) >= c.opts.MaxMessagesPerPacket {
		c.cancelSendTimer()
		c.flush()
		return
	}

	if c.sendTimer == nil {
		c.sendTimer = time.AfterFunc(c.opts.SendDelay, func() {
			c.post(func() {
				c.sendTimer = nil
				c.flush()
			})
		})
	}
}

func (c *Connection) cancelSendTimer() {
	if c.sendTimer != nil {
		c.sendTimer.Stop()
		c.sendTimer = nil
	}
}

// flush is a no-op unless the connection has completed its handshake
// (state OPEN) and the endpoint itself reports open. Frames stay queued
// across a disconnect, or across the time between dial and handshake
// completion; the queue is never cleared, so everything still in it is
// written, in order, the next time the connection reaches OPEN.
func (c *Connection) flush() {
	if c.state != StateOpen || c.endpoint == nil || c.endpoint.ReadyState() != transport.StateOpen {
		return
	}

	for len(c.sendQueue) > 0 {
		n := len(c.sendQueue)
		if n > c.opts.MaxMessagesPerPacket {
			n = c.opts.MaxMessagesPerPacket
		}

		batch := c.sendQueue[:n]
		c.sendQueue = c.sendQueue[n:]

		var buf bytes.Buffer
		for _, f := range batch {
			buf.Write(f)
		}

		if err := c.endpoint.Send(buf.Bytes()); err != nil {
			c.logger.Error().Err(err).Msg("flush failed")
			return
		}
	}
}
