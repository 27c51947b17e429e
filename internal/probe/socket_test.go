package probe

import (
	"errors"
	"net"
	"net/netip"
	"runtime"
	"testing"
	"time"

	"github.com/probeworks/echoprobe/internal/packet"
	"github.com/probeworks/echoprobe/internal/resolve"
)

func fakeSocket(conn *fakeConn, family packet.Family) *Socket {
	return &Socket{
		conn:     conn,
		family:   family,
		dst:      &net.UDPAddr{IP: net.ParseIP("192.0.2.1")},
		datagram: true,
		closedCh: make(chan struct{}),
	}
}

func TestSocket_SendFullWrite(t *testing.T) {
	conn := newFakeConn()
	s := fakeSocket(conn, packet.FamilyIPv4)

	b := packet.EncodeEchoRequest(packet.FamilyIPv4, 1, 1, []byte("payload"))
	n, err := s.send(b)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != len(b) {
		t.Errorf("sent %d bytes, want %d", n, len(b))
	}
}

func TestSocket_SendPartialWriteIsError(t *testing.T) {
	conn := newFakeConn()
	conn.writeCut = 3
	s := fakeSocket(conn, packet.FamilyIPv4)

	_, err := s.send(make([]byte, 16))
	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SendError", err)
	}
	if serr.Sent != 3 || serr.Size != 16 {
		t.Errorf("Sent/Size = %d/%d, want 3/16", serr.Sent, serr.Size)
	}
}

func TestSocket_SendSystemError(t *testing.T) {
	conn := newFakeConn()
	conn.writeErr = errors.New("sendto: host is down")
	s := fakeSocket(conn, packet.FamilyIPv4)

	_, err := s.send(make([]byte, 8))
	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SendError", err)
	}
	if !errors.Is(err, conn.writeErr) {
		t.Error("underlying write error not wrapped")
	}
}

func TestSocket_ReadLoopDeliversDatagrams(t *testing.T) {
	conn := newFakeConn()
	s := fakeSocket(conn, packet.FamilyIPv4)

	ch := make(chan rawDatagram, 4)
	go s.readLoop(ch)

	conn.push([]byte{1, 2, 3})
	select {
	case d := <-ch:
		if len(d.data) != 3 {
			t.Errorf("datagram length = %d, want 3", len(d.data))
		}
	case <-time.After(time.Second):
		t.Fatal("datagram not delivered")
	}

	s.close()
}

func TestSocket_ReadLoopStopsAfterClose(t *testing.T) {
	conn := newFakeConn()
	s := fakeSocket(conn, packet.FamilyIPv4)

	ch := make(chan rawDatagram) // unbuffered: nobody reads after close
	done := make(chan struct{})
	go func() {
		s.readLoop(ch)
		close(done)
	}()

	s.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readLoop did not exit after close")
	}
}

func TestSocket_CloseIdempotent(t *testing.T) {
	conn := newFakeConn()
	s := fakeSocket(conn, packet.FamilyIPv4)

	s.close()
	s.close() // must not panic
}

func TestOpen_Unprivileged(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping socket test on Windows")
	}

	addr := resolve.Address{IP: netip.MustParseAddr("127.0.0.1")}
	s, err := Open(addr, false)
	if err != nil {
		// Needs the ping_group_range sysctl on Linux.
		t.Skipf("Open failed (may need sysctl configuration): %v", err)
	}
	defer s.close()

	if s.family != packet.FamilyIPv4 {
		t.Errorf("family = %v, want ipv4", s.family)
	}
	if !s.datagram {
		t.Error("unprivileged socket not marked as datagram")
	}
	if _, ok := s.dst.(*net.UDPAddr); !ok {
		t.Errorf("dst = %T, want *net.UDPAddr", s.dst)
	}
}

func TestOpen_PrivilegedWithoutRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping socket test on Windows")
	}

	addr := resolve.Address{IP: netip.MustParseAddr("127.0.0.1")}
	s, err := Open(addr, true)
	if err == nil {
		// Running as root; just verify the raw socket shape.
		defer s.close()
		if s.datagram {
			t.Error("privileged socket marked as datagram")
		}
		if _, ok := s.dst.(*net.IPAddr); !ok {
			t.Errorf("dst = %T, want *net.IPAddr", s.dst)
		}
		return
	}

	var serr *SocketError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want SocketError", err)
	}
	if serr.Reason != PermissionDenied && serr.Reason != CreationFailed {
		t.Errorf("Reason = %v, want permission-denied or creation-failed", serr.Reason)
	}
}
