package rdt

import (
	"container/list"
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

var flagVerbose = flag.Bool("verbose", false, "show more detailed console output")

type rdtTestSuite struct {
	suite.Suite
}

func (suite *rdtTestSuite) handleTestError(err error) {
	suite.NoError(err)
}

// testConfig keeps retry timeouts short so loss scenarios finish quickly.
func testConfig() *Config {
	config := DefaultConfig()
	config.InitialRTT = 20 * time.Millisecond
	config.InitialDeviation = 5 * time.Millisecond
	if *flagVerbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		config.Logger = &logger
	}
	return config
}

func (suite *rdtTestSuite) expectSegment(ch chan []byte, segmentType byte) *segment {
	select {
	case buffer := <-ch:
		seg, err := parseSegment(buffer)
		if err != nil {
			suite.Failf("unexpected datagram", "len %d", len(buffer))
			return nil
		}
		suite.Equal(typeName(segmentType), typeName(seg.getType()))
		return seg
	case <-time.After(1 * time.Second):
		suite.Fail("timed out waiting for segment from channel")
		return nil
	}
}

func (suite *rdtTestSuite) expectAck(ch chan []byte, ackNumber uint32) {
	seg := suite.expectSegment(ch, typeACK)
	if seg != nil {
		suite.Equal(ackNumber, seg.getAckNumber())
	}
}

func (suite *rdtTestSuite) expectNoSegment(ch chan []byte, wait time.Duration) {
	select {
	case buffer := <-ch:
		seg, err := parseSegment(buffer)
		if err != nil {
			suite.Failf("unexpected datagram", "len %d", len(buffer))
			return
		}
		suite.Failf("unexpected segment", "type %s seq %d", typeName(seg.getType()), seg.getSequenceNumber())
	case <-time.After(wait):
	}
}

// channelConnector joins two endpoints through a pair of buffered channels,
// simulating a lossless datagram link. Writes never block as long as the
// buffer capacity is not exceeded.
type channelConnector struct {
	in      chan []byte
	out     chan []byte
	timeout time.Duration
}

func (connector *channelConnector) Close() error {
	// Leave the channels open; a late write from the peer must not panic.
	return nil
}

func (connector *channelConnector) Write(buffer []byte) (statusCode, int, error) {
	connector.out <- buffer
	return success, len(buffer), nil
}

func (connector *channelConnector) Read(buffer []byte) (statusCode, int, error) {
	if connector.timeout == 0 {
		buff := <-connector.in
		copy(buffer, buff)
		return success, len(buff), nil
	}
	select {
	case buff := <-connector.in:
		copy(buffer, buff)
		return success, len(buff), nil
	case <-time.After(connector.timeout):
		return timeout, 0, nil
	}
}

func (connector *channelConnector) SetReadTimeout(t time.Duration) {
	connector.timeout = t
}

// segmentManipulator drops selected outgoing segments once, letting tests
// inject loss at exact points of an exchange.
type segmentManipulator struct {
	extension      connector
	toDropOnce     list.List
	toDropTypeOnce list.List
}

func (manipulator *segmentManipulator) AddExtension(connector connector) {
	manipulator.extension = connector
}

func (manipulator *segmentManipulator) DropOnce(sequenceNumber uint32) {
	manipulator.toDropOnce.PushFront(sequenceNumber)
}

func (manipulator *segmentManipulator) DropTypeOnce(segmentType byte) {
	manipulator.toDropTypeOnce.PushFront(segmentType)
}

func (manipulator *segmentManipulator) Write(buffer []byte) (statusCode, int, error) {
	seg, err := parseSegment(buffer)
	if err == nil {
		for elem := manipulator.toDropOnce.Front(); elem != nil; elem = elem.Next() {
			if elem.Value.(uint32) == seg.getSequenceNumber() {
				manipulator.toDropOnce.Remove(elem)
				return success, len(buffer), nil
			}
		}
		for elem := manipulator.toDropTypeOnce.Front(); elem != nil; elem = elem.Next() {
			if elem.Value.(byte) == seg.getType() {
				manipulator.toDropTypeOnce.Remove(elem)
				return success, len(buffer), nil
			}
		}
	}
	return manipulator.extension.Write(buffer)
}

func (manipulator *segmentManipulator) Read(buffer []byte) (statusCode, int, error) {
	return manipulator.extension.Read(buffer)
}

func (manipulator *segmentManipulator) SetReadTimeout(t time.Duration) {
	manipulator.extension.SetReadTimeout(t)
}

func (manipulator *segmentManipulator) Close() error {
	return manipulator.extension.Close()
}

type consolePrinter struct {
	extension connector
	Name      string
}

func (printer *consolePrinter) AddExtension(connector connector) {
	printer.extension = connector
}

func (printer *consolePrinter) Read(buffer []byte) (statusCode, int, error) {
	status, n, err := printer.extension.Read(buffer)
	if status == success {
		printer.prettyPrint(buffer[:n], "Read(...)", status, n, err)
	}
	return status, n, err
}

func (printer *consolePrinter) Write(buffer []byte) (statusCode, int, error) {
	status, n, err := printer.extension.Write(buffer)
	printer.prettyPrint(buffer, "Write(...)", status, n, err)
	return status, n, err
}

func (printer *consolePrinter) prettyPrint(buffer []byte, funcName string, status statusCode, n int, err error) {
	var str string
	seg, parseErr := parseSegment(buffer)
	if parseErr != nil {
		str = fmt.Sprintf("MALFORMED %d", buffer)
	} else if seg.getType() == typeDATA {
		str = fmt.Sprintf("%s seq:%d %q", typeName(seg.getType()), seg.getSequenceNumber(), seg.getDataAsString())
	} else {
		str = fmt.Sprintf("%s seq:%d ack:%d", typeName(seg.getType()), seg.getSequenceNumber(), seg.getAckNumber())
	}
	println(printer.Name, reflect.TypeOf(printer).Elem().Name(), funcName, str, "status:", int(status), "n:", n, "error:", fmt.Sprintf("%+v", err))
}

func (printer *consolePrinter) SetReadTimeout(t time.Duration) {
	printer.extension.SetReadTimeout(t)
}

func (printer *consolePrinter) Close() error {
	return printer.extension.Close()
}

func newTestChannelPair() (*channelConnector, *channelConnector) {
	endpoint1, endpoint2 := make(chan []byte, 100), make(chan []byte, 100)
	alpha := &channelConnector{in: endpoint1, out: endpoint2}
	beta := &channelConnector{in: endpoint2, out: endpoint1}
	return alpha, beta
}

func newTestConnPair(config *Config) (alpha, beta *Conn, alphaManipulator, betaManipulator *segmentManipulator) {
	alphaChannel, betaChannel := newTestChannelPair()
	alphaManipulator, betaManipulator = &segmentManipulator{}, &segmentManipulator{}
	alphaManipulator.AddExtension(alphaChannel)
	betaManipulator.AddExtension(betaChannel)
	var alphaEndpoint, betaEndpoint connector = alphaManipulator, betaManipulator
	if *flagVerbose {
		alphaPrinter, betaPrinter := &consolePrinter{Name: "alpha"}, &consolePrinter{Name: "beta"}
		alphaPrinter.AddExtension(alphaManipulator)
		betaPrinter.AddExtension(betaManipulator)
		alphaEndpoint, betaEndpoint = alphaPrinter, betaPrinter
	}
	alpha = newConn(alphaEndpoint, config)
	beta = newConn(betaEndpoint, config)
	return
}

// establishedTestConnPair skips the handshake and puts both connections in
// the state an initiator (alpha) and a listener (beta) hold right after it:
// sequence zero consumed on alpha's send side and beta's receive side.
func establishedTestConnPair(config *Config) (alpha, beta *Conn, alphaManipulator, betaManipulator *segmentManipulator) {
	alpha, beta, alphaManipulator, betaManipulator = newTestConnPair(config)
	alpha.state, beta.state = stateEstablished, stateEstablished
	alpha.nextSequenceNumber = 1
	beta.expectedSequenceNumber = 1
	return
}

// newMockSenderConn returns an established initiator-side connection whose
// peer is played by the test through the returned channel endpoints.
func newMockSenderConn(config *Config) (*Conn, *channelConnector) {
	_, channel := newTestChannelPair()
	conn := newConn(channel, config)
	conn.state = stateEstablished
	conn.nextSequenceNumber = 1
	return conn, channel
}

// newMockReceiverConn is the listener-side counterpart of newMockSenderConn.
func newMockReceiverConn(config *Config) (*Conn, *channelConnector) {
	_, channel := newTestChannelPair()
	conn := newConn(channel, config)
	conn.state = stateEstablished
	conn.expectedSequenceNumber = 1
	return conn, channel
}
