package rdt

import "time"

// connector is the datagram primitive the protocol runs on: write one
// datagram to the bound peer, read one datagram or time out. Timeouts
// surface as a status code, never as an error. SetReadTimeout(0) makes
// reads block indefinitely.
type connector interface {
	Read(buffer []byte) (statusCode, int, error)
	Write(buffer []byte) (statusCode, int, error)
	SetReadTimeout(t time.Duration)
	Close() error
}
