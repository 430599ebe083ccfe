package rdt

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type connState int

const (
	stateUninitialized connState = iota
	stateEstablished
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUninitialized:
		return "UNINITIALIZED"
	case stateEstablished:
		return "ESTABLISHED"
	case stateClosed:
		return "CLOSED"
	}
	return "INVALID"
}

// Conn is one endpoint of a reliable connection. A Conn owns its underlying
// channel exclusively and runs every operation on the caller's goroutine;
// Send, Receive and Close are strictly sequential and must not be called
// concurrently.
type Conn struct {
	endpoint connector
	state    connState

	nextSequenceNumber     uint32
	expectedSequenceNumber uint32

	rtt    *rttEstimator
	config *Config
	log    zerolog.Logger

	readBuffer []byte
}

func newConn(endpoint connector, config *Config) *Conn {
	config = config.normalized()
	return &Conn{
		endpoint:   endpoint,
		state:      stateUninitialized,
		rtt:        newRTTEstimator(config.InitialRTT, config.InitialDeviation),
		config:     config,
		log:        *config.Logger,
		readBuffer: make([]byte, MaxSegmentSize),
	}
}

// Accept binds the given UDP port, waits indefinitely for a peer to begin
// the handshake, and returns an established connection bound to that peer.
// A nil config means defaults.
func Accept(port int, config *Config) (*Conn, error) {
	endpoint, err := newUDPListener(port)
	if err != nil {
		return nil, fmt.Errorf("rdt: listen: %w", err)
	}
	conn := newConn(endpoint, config)
	conn.log.Info().Stringer("address", endpoint.LocalAddr()).Msg("waiting for connection")
	if err := conn.accept(); err != nil {
		_ = endpoint.Close()
		return nil, err
	}
	return conn, nil
}

// Connect establishes a connection to a listening peer. A nil config means
// defaults.
func Connect(host string, port int, config *Config) (*Conn, error) {
	endpoint, err := newUDPDialer(host, port)
	if err != nil {
		return nil, fmt.Errorf("rdt: dial: %w", err)
	}
	conn := newConn(endpoint, config)
	if err := conn.connect(); err != nil {
		_ = endpoint.Close()
		return nil, err
	}
	return conn, nil
}

// EstimatedRTT returns the current smoothed round-trip estimate.
func (c *Conn) EstimatedRTT() time.Duration {
	return c.rtt.estimated
}

// Close runs the teardown exchange and releases the underlying channel. It
// returns once the peer has acknowledged the close or the attempt budget is
// spent; the connection ends CLOSED either way. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.state == stateClosed {
		return nil
	}
	if c.state == stateEstablished {
		c.teardown()
	}
	c.state = stateClosed
	err := c.endpoint.Close()
	c.log.Info().Msg("connection closed")
	return err
}

func (c *Conn) teardown() {
	closeSegment := createSegment(typeCLOSE, 0, 0, nil)
	timeouts := 0
	for timeouts < c.config.CloseAttempts {
		if _, _, err := c.endpoint.Write(closeSegment.buffer); err != nil {
			c.log.Debug().Err(err).Msg("close send failed")
			return
		}
		c.endpoint.SetReadTimeout(c.rtt.timeout())
		status, n, err := c.endpoint.Read(c.readBuffer)
		if err != nil {
			c.log.Debug().Err(err).Msg("close read failed")
			return
		}
		if status == timeout {
			c.rtt.onTimeout()
			timeouts++
			c.log.Debug().Int("attempt", timeouts).Msg("close reply timed out")
			continue
		}
		reply, err := parseSegment(c.readBuffer[:n])
		if err != nil {
			continue
		}
		switch reply.getType() {
		case typeCLOSE:
			// Peer is closing too; acknowledge and finish.
			ack := createAckSegment(0)
			_, _, _ = c.endpoint.Write(ack.buffer)
			return
		case typeACK:
			return
		case typeDATA:
			// Residual in-flight data. ACK it so the peer's sender does
			// not stall; expectedSequenceNumber stays untouched.
			ack := createAckSegment(reply.getSequenceNumber())
			_, _, _ = c.endpoint.Write(ack.buffer)
		case typeCONN:
			ack := createAckSegment(0)
			_, _, _ = c.endpoint.Write(ack.buffer)
		}
	}
	c.log.Debug().Int("attempts", timeouts).Msg("close unacknowledged, giving up")
}
