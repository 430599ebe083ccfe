package rdt

import "errors"

var (
	// ErrMalformedSegment reports a datagram shorter than the segment header.
	ErrMalformedSegment = errors.New("rdt: malformed segment")
	// ErrNotConnected reports an operation outside the ESTABLISHED state.
	ErrNotConnected = errors.New("rdt: not connected")
	// ErrPayloadTooLarge reports a Send buffer exceeding MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("rdt: payload too large")
	// ErrHandshakeFailed reports an exhausted establishment attempt budget.
	ErrHandshakeFailed = errors.New("rdt: handshake failed")
	// ErrMaxRetries reports an exhausted retransmission attempt budget.
	ErrMaxRetries = errors.New("rdt: max retries exceeded")
)
