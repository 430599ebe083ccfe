package rdt

import (
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

var errNoPeer = errors.New("rdt: no peer bound")

// udpConnector implements connector over a single UDP socket. A dialed
// connector is locked to its remote from the start; a listening connector
// stays unbound until a connection request arrives, locks to its sender,
// and from then on discards datagrams from any other address.
type udpConnector struct {
	conn        *net.UDPConn
	peer        *net.UDPAddr
	dialed      bool
	readTimeout time.Duration
}

func createUDPAddress(addressString string, port int) (*net.UDPAddr, error) {
	address := addressString + ":" + strconv.Itoa(port)
	return net.ResolveUDPAddr("udp4", address)
}

func newUDPDialer(address string, port int) (*udpConnector, error) {
	remoteAddress, err := createUDPAddress(address, port)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, remoteAddress)
	if err != nil {
		return nil, err
	}
	return &udpConnector{conn: conn, peer: remoteAddress, dialed: true}, nil
}

func newUDPListener(port int) (*udpConnector, error) {
	localAddress, err := createUDPAddress("", port)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", localAddress)
	if err != nil {
		return nil, err
	}
	return &udpConnector{conn: conn}, nil
}

func (connector *udpConnector) Close() error {
	return connector.conn.Close()
}

func (connector *udpConnector) LocalAddr() net.Addr {
	return connector.conn.LocalAddr()
}

func (connector *udpConnector) SetReadTimeout(t time.Duration) {
	connector.readTimeout = t
}

func (connector *udpConnector) Write(buffer []byte) (statusCode, int, error) {
	var n int
	var err error
	if connector.dialed {
		n, err = connector.conn.Write(buffer)
	} else if connector.peer != nil {
		n, err = connector.conn.WriteToUDP(buffer, connector.peer)
	} else {
		return fail, 0, errNoPeer
	}
	if err != nil {
		// A connected UDP socket reports an earlier ICMP refusal on the
		// next syscall. The datagram it refers to was lost, nothing more;
		// the retry loops recover from loss.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return success, len(buffer), nil
		}
		return fail, n, err
	}
	return success, n, nil
}

func (connector *udpConnector) Read(buffer []byte) (statusCode, int, error) {
	var deadline time.Time
	if connector.readTimeout > 0 {
		deadline = time.Now().Add(connector.readTimeout)
	}
	if err := connector.conn.SetReadDeadline(deadline); err != nil {
		return fail, 0, err
	}
	for {
		var n int
		var err error
		if connector.dialed {
			n, err = connector.conn.Read(buffer)
		} else {
			var fromAddress *net.UDPAddr
			n, fromAddress, err = connector.conn.ReadFromUDP(buffer)
			if err == nil {
				if connector.peer == nil {
					// Only a connection request claims the socket. Stray
					// datagrams are still delivered so the consumer can
					// drop them, but their senders never become the peer.
					if isConnRequest(buffer[:n]) {
						connector.peer = fromAddress
					}
				} else if !udpAddressEqual(connector.peer, fromAddress) {
					continue
				}
			}
		}
		if err == nil {
			return success, n, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return timeout, 0, nil
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			continue
		}
		return fail, 0, err
	}
}

func isConnRequest(buffer []byte) bool {
	seg, err := parseSegment(buffer)
	return err == nil && seg.getType() == typeCONN
}

func udpAddressEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
