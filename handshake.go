package rdt

import (
	"fmt"
	"time"
)

// accept runs the listener half of the handshake. It blocks without timeout
// until a CONN segment arrives, which locks the endpoint to that peer, then
// retries the CONN reply until the peer's ACK lands or the attempt budget
// is spent.
func (c *Conn) accept() error {
	c.endpoint.SetReadTimeout(0)
	for {
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			return fmt.Errorf("rdt: accept: %w", err)
		}
		if status != success {
			continue
		}
		seg, err := parseSegment(c.readBuffer[:n])
		if err != nil || seg.getType() != typeCONN {
			// Stray traffic while no handshake is underway.
			continue
		}
		break
	}
	c.log.Debug().Msg("connection request received")

	reply := createSegment(typeCONN, 0, 0, nil)
	timeouts := 0
	for timeouts < c.config.HandshakeAttempts {
		if _, _, err := c.endpoint.Write(reply.buffer); err != nil {
			return fmt.Errorf("rdt: accept: %w", err)
		}
		c.endpoint.SetReadTimeout(c.rtt.timeout())
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			return fmt.Errorf("rdt: accept: %w", err)
		}
		if status == timeout {
			c.rtt.onTimeout()
			timeouts++
			c.log.Debug().Int("attempt", timeouts).Dur("timeout", c.rtt.timeout()).Msg("handshake reply timed out")
			continue
		}
		seg, err := parseSegment(c.readBuffer[:n])
		if err != nil {
			continue
		}
		if seg.getType() == typeACK {
			c.expectedSequenceNumber++
			c.state = stateEstablished
			c.endpoint.SetReadTimeout(0)
			c.log.Info().Msg("connection established")
			return nil
		}
		// Anything else, usually a retransmitted CONN, falls through to
		// resend the reply without spending an attempt.
	}
	return fmt.Errorf("%w: no ACK after %d attempts", ErrHandshakeFailed, c.config.HandshakeAttempts)
}

// connect runs the initiator half of the handshake. The CONN request
// carries sequence number zero; the reply round trip seeds the RTT
// estimate.
func (c *Conn) connect() error {
	request := createSegment(typeCONN, 0, 0, nil)
	timeouts := 0
	for timeouts < c.config.HandshakeAttempts {
		if _, _, err := c.endpoint.Write(request.buffer); err != nil {
			return fmt.Errorf("rdt: connect: %w", err)
		}
		request.timestamp = time.Now()
		c.endpoint.SetReadTimeout(c.rtt.timeout())
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			return fmt.Errorf("rdt: connect: %w", err)
		}
		if status == timeout {
			c.rtt.onTimeout()
			timeouts++
			c.log.Debug().Int("attempt", timeouts).Dur("timeout", c.rtt.timeout()).Msg("connection request timed out")
			continue
		}
		seg, err := parseSegment(c.readBuffer[:n])
		if err != nil || seg.getType() != typeCONN {
			continue
		}
		c.rtt.onSample(time.Since(request.timestamp))
		c.nextSequenceNumber++
		c.state = stateEstablished
		c.endpoint.SetReadTimeout(0)
		ack := createAckSegment(0)
		if _, _, err := c.endpoint.Write(ack.buffer); err != nil {
			return fmt.Errorf("rdt: connect: %w", err)
		}
		c.log.Info().Dur("rtt", c.rtt.estimated).Msg("connection established")
		return nil
	}
	return fmt.Errorf("%w: no reply after %d attempts", ErrHandshakeFailed, c.config.HandshakeAttempts)
}
