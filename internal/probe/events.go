package probe

import (
	"time"

	"github.com/probeworks/echoprobe/internal/packet"
	"github.com/probeworks/echoprobe/internal/resolve"
)

// EventSink receives lifecycle and per-packet events from a Session. A
// session holds exactly one sink for its lifetime and invokes it from the
// session's event loop, so implementations see events one at a time and in
// order. Sinks must not call back into Stop.
type EventSink interface {
	// Started reports that the socket is open and the session is ready.
	Started(addr resolve.Address)

	// Failed reports that the session entered the failed state. The
	// session is inert afterwards; no further events follow.
	Failed(err error)

	// Sent reports one successfully transmitted echo request.
	Sent(seq uint16)

	// SendFailed reports one echo request that could not be transmitted.
	// The session stays ready.
	SendFailed(seq uint16, err error)

	// Received reports a matching echo reply for an outstanding request.
	Received(seq uint16, rtt time.Duration, reply *packet.EchoReply)

	// Unexpected reports a datagram that did not validate as a matching
	// echo reply for this session.
	Unexpected(data []byte)
}

// NopSink is an EventSink that ignores every event.
type NopSink struct{}

func (NopSink) Started(resolve.Address) {}

func (NopSink) Failed(error) {}

func (NopSink) Sent(uint16) {}

func (NopSink) SendFailed(uint16, error) {}

func (NopSink) Received(uint16, time.Duration, *packet.EchoReply) {}

func (NopSink) Unexpected([]byte) {}
