package rdt

import "time"

// Segment type tags as they appear on the wire. Both endpoints must agree.
const (
	typeCONN byte = iota
	typeDATA
	typeACK
	typeCLOSE
)

const (
	// MaxSegmentSize bounds one datagram on the wire, header included.
	MaxSegmentSize = 1400
	// MaxPayloadSize is the largest buffer a single Send accepts.
	MaxPayloadSize = MaxSegmentSize - headerLength

	headerLength = 9
)

type statusCode int

const (
	success statusCode = iota
	fail
	timeout
)

type position struct {
	Start int
	End   int
}

var (
	typePosition           = position{0, 1}
	sequenceNumberPosition = position{1, 5}
	ackNumberPosition      = position{5, 9}
)

// Estimator constants. The caps and factors are protocol-wide; the initial
// values are Config defaults so tests can shrink them.
const (
	rttCeiling    = 500 * time.Millisecond
	timeoutFloor  = 1 * time.Millisecond
	timeoutFactor = 1.5
	backoffFactor = 1.2
	rttSampleGain = 0.125
	deviationGain = 0.25
)

const (
	defaultInitialRTT        = 100 * time.Millisecond
	defaultInitialDeviation  = 10 * time.Millisecond
	defaultHandshakeAttempts = 10
	defaultSendAttempts      = 10
	defaultCloseAttempts     = 5
)
