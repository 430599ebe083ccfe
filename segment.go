package rdt

import (
	"encoding/binary"
	"time"
)

func bytesToUint32(buffer []byte) uint32 {
	return binary.BigEndian.Uint32(buffer)
}

// segment wraps one wire datagram. buffer is the full encoded form,
// data aliases the payload portion of buffer.
type segment struct {
	buffer    []byte
	data      []byte
	timestamp time.Time
}

func (seg *segment) getType() byte {
	return seg.buffer[typePosition.Start]
}

func (seg *segment) getSequenceNumber() uint32 {
	return bytesToUint32(seg.buffer[sequenceNumberPosition.Start:sequenceNumberPosition.End])
}

func (seg *segment) getAckNumber() uint32 {
	return bytesToUint32(seg.buffer[ackNumberPosition.Start:ackNumberPosition.End])
}

func (seg *segment) getDataAsString() string {
	return string(seg.data)
}

func setType(buffer []byte, segmentType byte) {
	buffer[typePosition.Start] = segmentType
}

func setSequenceNumber(buffer []byte, sequenceNumber uint32) {
	binary.BigEndian.PutUint32(buffer[sequenceNumberPosition.Start:sequenceNumberPosition.End], sequenceNumber)
}

func setAckNumber(buffer []byte, ackNumber uint32) {
	binary.BigEndian.PutUint32(buffer[ackNumberPosition.Start:ackNumberPosition.End], ackNumber)
}

func createSegment(segmentType byte, sequenceNumber, ackNumber uint32, data []byte) *segment {
	buffer := make([]byte, headerLength+len(data))
	setType(buffer, segmentType)
	setSequenceNumber(buffer, sequenceNumber)
	setAckNumber(buffer, ackNumber)
	copy(buffer[headerLength:], data)
	return &segment{buffer: buffer, data: buffer[headerLength:]}
}

func createDataSegment(sequenceNumber uint32, data []byte) *segment {
	return createSegment(typeDATA, sequenceNumber, 0, data)
}

func createAckSegment(ackNumber uint32) *segment {
	return createSegment(typeACK, 0, ackNumber, nil)
}

// parseSegment decodes a received datagram in place. The returned segment
// aliases buffer; it does not copy.
func parseSegment(buffer []byte) (*segment, error) {
	if len(buffer) < headerLength {
		return nil, ErrMalformedSegment
	}
	return &segment{buffer: buffer, data: buffer[headerLength:]}, nil
}

func typeName(segmentType byte) string {
	switch segmentType {
	case typeCONN:
		return "CONN"
	case typeDATA:
		return "DATA"
	case typeACK:
		return "ACK"
	case typeCLOSE:
		return "CLOSE"
	}
	return "UNKNOWN"
}
