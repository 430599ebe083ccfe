package rdt

import (
	"fmt"
	"time"
)

// Send transmits one buffer as a single DATA segment and blocks until the
// peer acknowledges it. At most one segment is ever in flight. The buffer
// must fit into a single segment; larger transfers are the caller's job to
// split. A zero-length buffer is legal and arrives at the peer as an empty,
// non-nil payload, distinct from the nil payload that signals a close.
func (c *Conn) Send(buffer []byte) error {
	if c.state != stateEstablished {
		c.log.Debug().Stringer("state", c.state).Msg("send rejected")
		return ErrNotConnected
	}
	if len(buffer) > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(buffer), MaxPayloadSize)
	}
	seg := createDataSegment(c.nextSequenceNumber, buffer)
	timeouts := 0
	for timeouts < c.config.SendAttempts {
		if _, _, err := c.endpoint.Write(seg.buffer); err != nil {
			return fmt.Errorf("rdt: send: %w", err)
		}
		seg.timestamp = time.Now()
		c.endpoint.SetReadTimeout(c.rtt.timeout())
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			return fmt.Errorf("rdt: send: %w", err)
		}
		if status == timeout {
			c.rtt.onTimeout()
			timeouts++
			c.log.Debug().Uint32("seq", seg.getSequenceNumber()).Int("attempt", timeouts).Dur("timeout", c.rtt.timeout()).Msg("retransmitting")
			continue
		}
		reply, err := parseSegment(c.readBuffer[:n])
		if err != nil {
			c.rtt.onTimeout()
			continue
		}
		switch {
		case reply.getType() == typeACK && reply.getAckNumber() == seg.getSequenceNumber():
			c.rtt.onSample(time.Since(seg.timestamp))
			c.nextSequenceNumber++
			c.log.Debug().Uint32("seq", seg.getSequenceNumber()).Dur("rtt", c.rtt.estimated).Msg("segment acknowledged")
			return nil
		case reply.getType() == typeCONN:
			// The peer never saw our handshake ACK. Repeat it, then retry
			// the same segment.
			ack := createAckSegment(0)
			if _, _, err := c.endpoint.Write(ack.buffer); err != nil {
				return fmt.Errorf("rdt: send: %w", err)
			}
		default:
			// Stale ACK or other unexpected reply; back off and resend
			// without spending an attempt.
			c.rtt.onTimeout()
			c.log.Debug().Str("type", typeName(reply.getType())).Uint32("ack", reply.getAckNumber()).Msg("unexpected reply")
		}
	}
	return fmt.Errorf("%w: seq %d unacknowledged after %d attempts", ErrMaxRetries, c.nextSequenceNumber, c.config.SendAttempts)
}

// Receive blocks until the next in-order DATA segment arrives and returns
// its payload. A nil payload with a nil error means the peer initiated
// close; the caller should respond by calling Close.
func (c *Conn) Receive() ([]byte, error) {
	if c.state != stateEstablished {
		c.log.Debug().Stringer("state", c.state).Msg("receive rejected")
		return nil, ErrNotConnected
	}
	c.endpoint.SetReadTimeout(0)
	for {
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			return nil, fmt.Errorf("rdt: receive: %w", err)
		}
		if status != success {
			continue
		}
		seg, err := parseSegment(c.readBuffer[:n])
		if err != nil {
			c.log.Debug().Int("len", n).Msg("dropping malformed datagram")
			continue
		}
		switch seg.getType() {
		case typeDATA:
			sequenceNumber := seg.getSequenceNumber()
			switch {
			case sequenceNumber == c.expectedSequenceNumber:
				ack := createAckSegment(sequenceNumber)
				if _, _, err := c.endpoint.Write(ack.buffer); err != nil {
					return nil, fmt.Errorf("rdt: receive: %w", err)
				}
				c.expectedSequenceNumber++
				payload := make([]byte, len(seg.data))
				copy(payload, seg.data)
				c.log.Debug().Uint32("seq", sequenceNumber).Int("len", len(payload)).Msg("segment delivered")
				return payload, nil
			case sequenceNumber < c.expectedSequenceNumber && sequenceNumber > 0:
				// Duplicate of already delivered data; its ACK was lost.
				ack := createAckSegment(sequenceNumber)
				if _, _, err := c.endpoint.Write(ack.buffer); err != nil {
					return nil, fmt.Errorf("rdt: receive: %w", err)
				}
				c.log.Debug().Uint32("seq", sequenceNumber).Msg("duplicate segment, ACK repeated")
			default:
				c.log.Debug().Uint32("seq", sequenceNumber).Uint32("expected", c.expectedSequenceNumber).Msg("ignoring out-of-order segment")
			}
		case typeCLOSE:
			c.log.Debug().Msg("peer requested close")
			return nil, nil
		case typeCONN:
			// Handshake ACK lost on our side; repeat it.
			ack := createAckSegment(0)
			if _, _, err := c.endpoint.Write(ack.buffer); err != nil {
				return nil, fmt.Errorf("rdt: receive: %w", err)
			}
		default:
			// Stale ACK; nothing to do.
		}
	}
}
