package probe

import (
	"net"
	"os"
	"sync"

	"golang.org/x/net/icmp"

	"github.com/probeworks/echoprobe/internal/packet"
	"github.com/probeworks/echoprobe/internal/resolve"
)

// maxDatagramSize bounds a single receive. Echo replies are small; this
// leaves room for an IPv4 header plus any payload a peer may reflect.
const maxDatagramSize = 65536

// packetConn is the subset of *icmp.PacketConn a Socket needs. It exists so
// tests can run sessions without opening real sockets.
type packetConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	Close() error
}

// Socket owns one ICMP socket bound to a resolved address's family.
type Socket struct {
	conn     packetConn
	family   packet.Family
	dst      net.Addr
	datagram bool // unprivileged ICMP datagram socket

	closeOnce sync.Once
	closedCh  chan struct{}
}

// rawDatagram is one received datagram, or a fatal read error, handed from
// the reader goroutine to the session loop.
type rawDatagram struct {
	data []byte
	from net.Addr
	err  error
}

// Open creates a socket for the target address. Privileged mode uses raw
// sockets ("ip4:icmp"/"ip6:ipv6-icmp"); otherwise ICMP datagram sockets
// ("udp4"/"udp6") are used, which on Linux require the ping_group_range
// sysctl instead of root.
func Open(addr resolve.Address, privileged bool) (*Socket, error) {
	family := addr.Family()

	var network, bind string
	switch {
	case family == packet.FamilyIPv6 && privileged:
		network, bind = "ip6:ipv6-icmp", "::"
	case family == packet.FamilyIPv6:
		network, bind = "udp6", "::"
	case privileged:
		network, bind = "ip4:icmp", "0.0.0.0"
	default:
		network, bind = "udp4", "0.0.0.0"
	}

	conn, err := icmp.ListenPacket(network, bind)
	if err != nil {
		reason := CreationFailed
		if os.IsPermission(err) {
			reason = PermissionDenied
		}
		return nil, &SocketError{Reason: reason, Err: err}
	}

	ip := net.IP(addr.IP.AsSlice())
	var dst net.Addr
	if privileged {
		dst = &net.IPAddr{IP: ip}
	} else {
		dst = &net.UDPAddr{IP: ip}
	}

	return &Socket{
		conn:     conn,
		family:   family,
		dst:      dst,
		datagram: !privileged,
		closedCh: make(chan struct{}),
	}, nil
}

// send transmits one encoded message. Partial writes are reported as a
// *SendError, never retried.
func (s *Socket) send(b []byte) (int, error) {
	n, err := s.conn.WriteTo(b, s.dst)
	if err != nil {
		return n, &SendError{Size: len(b), Sent: n, Err: err}
	}
	if n != len(b) {
		return n, &SendError{Size: len(b), Sent: n}
	}
	return n, nil
}

// readLoop receives datagrams until the socket closes or reading fails, and
// delivers each to ch. A fatal read error is delivered once, then the loop
// exits. Sends race against closedCh so the loop never blocks on a session
// that has already stopped.
func (s *Socket) readLoop(ch chan<- rawDatagram) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closedCh:
			case ch <- rawDatagram{err: err}:
			}
			return
		}

		d := rawDatagram{data: append([]byte(nil), buf[:n]...), from: from}
		select {
		case <-s.closedCh:
			return
		case ch <- d:
		}
	}
}

// close releases the underlying socket. Safe to call more than once.
func (s *Socket) close() {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		s.conn.Close()
	})
}
