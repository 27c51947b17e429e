package probe

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/probeworks/echoprobe/internal/logging"
	"github.com/probeworks/echoprobe/internal/metrics"
	"github.com/probeworks/echoprobe/internal/packet"
	"github.com/probeworks/echoprobe/internal/recovery"
	"github.com/probeworks/echoprobe/internal/resolve"
)

// State represents the lifecycle state of a Session.
type State int32

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateResolving means hostname resolution is in flight.
	StateResolving
	// StateReady means the socket is open and echo requests may be sent.
	StateReady
	// StateStopped is the terminal state reached via Stop.
	StateStopped
	// StateFailed is the terminal state reached via an unrecoverable error.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResolving:
		return "RESOLVING"
	case StateReady:
		return "READY"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config holds configuration for a probing session.
type Config struct {
	// Interval is the periodic send cadence. Zero disables the scheduler;
	// the caller then drives every send through Send.
	Interval time.Duration

	// Timeout is how long an unanswered request stays outstanding before
	// it is silently retired. Zero means DefaultTimeout.
	Timeout time.Duration

	// PayloadSize is the default filler payload length for sends with no
	// explicit payload.
	PayloadSize int

	// Privileged selects raw sockets instead of ICMP datagram sockets.
	Privileged bool

	// AddressStyle selects which resolved address family is accepted.
	AddressStyle resolve.AddressStyle

	// Identifier overrides the session identifier. Zero derives one from
	// the process ID.
	Identifier uint16

	// Resolver overrides the hostname resolver. Nil uses a default.
	Resolver *resolve.Resolver

	// Logger receives structured logs. Nil discards them.
	Logger *slog.Logger

	// Metrics receives counters and histograms. Nil uses the default
	// registry.
	Metrics *metrics.Metrics
}

const (
	// DefaultInterval is the periodic send cadence when none is set.
	DefaultInterval = time.Second
	// DefaultTimeout is the outstanding-request retirement age.
	DefaultTimeout = 5 * time.Second
	// DefaultPayloadSize is the classic ping payload length.
	DefaultPayloadSize = 56
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		Timeout:      DefaultTimeout,
		PayloadSize:  DefaultPayloadSize,
		AddressStyle: resolve.StyleAny,
	}
}

// resolveResult carries an asynchronous resolution outcome into the loop.
type resolveResult struct {
	addr    resolve.Address
	elapsed time.Duration
	err     error
}

// sendRequest is a caller-initiated send handed to the loop.
type sendRequest struct {
	payload []byte
}

// Session is one ICMP echo probing run against one host. Create it with
// New, drive it with Start/Send/Stop, and observe it through the EventSink.
// All methods are safe for concurrent use; events are delivered from the
// session's own loop goroutine.
type Session struct {
	host string
	cfg  Config
	sink EventSink
	log  *slog.Logger
	met  *metrics.Metrics
	id   uint16

	state atomic.Int32

	// loop-owned state
	nextSeq     uint16
	outstanding map[uint16]time.Time
	addr        resolve.Address
	sock        *Socket
	sched       scheduler

	resolveCh chan resolveResult
	recvCh    chan rawDatagram
	sendCh    chan sendRequest
	stopCh    chan struct{}
	loopDone  chan struct{}

	cancelResolve context.CancelFunc
	startOnce     sync.Once
	stopOnce      sync.Once
	started       atomic.Bool
	tornDown      bool

	// open is the socket factory; a test seam.
	open func(addr resolve.Address, privileged bool) (*Socket, error)
}

// New creates a session for host. The sink receives all events; it must not
// be nil.
func New(host string, sink EventSink, cfg Config) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PayloadSize < 0 {
		cfg.PayloadSize = 0
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	met := cfg.Metrics
	if met == nil {
		met = metrics.Default()
	}

	id := cfg.Identifier
	if id == 0 {
		id = uint16(os.Getpid() & 0xffff)
	}

	return &Session{
		host:        host,
		cfg:         cfg,
		sink:        sink,
		log:         logging.WithComponent(log, "session"),
		met:         met,
		id:          id,
		outstanding: make(map[uint16]time.Time),
		resolveCh:   make(chan resolveResult, 1),
		recvCh:      make(chan rawDatagram, 16),
		sendCh:      make(chan sendRequest, 16),
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
		open:        Open,
	}
}

// Host returns the hostname the session probes.
func (s *Session) Host() string {
	return s.host
}

// ID returns the session's echo identifier.
func (s *Session) ID() uint16 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("state transition",
			logging.KeyHost, s.host,
			"from", old.String(),
			logging.KeyState, st.String())
	}
}

// Start begins the session: resolution runs asynchronously and the outcome
// arrives through the sink as either Started or Failed. Calling Start more
// than once has no effect.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		select {
		case <-s.stopCh:
			// Stopped before it ever started.
			return
		default:
		}

		s.started.Store(true)
		s.setState(StateResolving)
		s.met.SessionsActive.Inc()

		resolver := s.cfg.Resolver
		if resolver == nil {
			resolver = &resolve.Resolver{}
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.cancelResolve = cancel

		go func() {
			defer recovery.RecoverWithLog(s.log, "resolve")
			began := time.Now()
			addr, err := resolver.Resolve(ctx, s.host, s.cfg.AddressStyle)
			s.resolveCh <- resolveResult{addr: addr, elapsed: time.Since(began), err: err}
		}()

		go s.run()
	})
}

// Send transmits one echo request with the given payload. A nil payload uses
// the session's default filler. Sends are accepted only while the session is
// ready; anything else is dropped.
func (s *Session) Send(payload []byte) {
	if s.State() != StateReady {
		return
	}
	select {
	case s.sendCh <- sendRequest{payload: payload}:
	case <-s.stopCh:
	case <-s.loopDone:
	}
}

// Stop ends the session. It is synchronous and total: once Stop returns, the
// scheduler is cancelled, the socket is closed, and no further events are
// delivered, even for notifications already in flight. Idempotent; safe from
// any state.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.loopDone
		}
		s.setState(StateStopped)
	})
}

// run is the session's event loop. It owns every piece of mutable session
// state; no other goroutine touches it.
func (s *Session) run() {
	defer close(s.loopDone)
	defer s.teardown()
	defer recovery.RecoverWithLog(s.log, "session loop")

	var tickCh <-chan time.Time

	for {
		// Stop wins over any notification already queued: a stale
		// completion must never surface after Stop returns.
		select {
		case <-s.stopCh:
			return
		default:
		}

		select {
		case <-s.stopCh:
			return

		case res := <-s.resolveCh:
			if res.err != nil {
				s.met.ResolutionErrors.WithLabelValues(resolveCause(res.err)).Inc()
				s.fail(res.err, "resolution")
				return
			}
			s.met.Resolutions.Inc()
			s.met.ResolutionLatency.Observe(res.elapsed.Seconds())

			sock, err := s.open(res.addr, s.cfg.Privileged)
			if err != nil {
				s.fail(err, "socket")
				return
			}

			s.addr = res.addr
			s.sock = sock
			s.setState(StateReady)
			s.met.SessionsStarted.Inc()
			s.log.Info("session ready",
				logging.KeyHost, s.host,
				logging.KeyAddress, res.addr.String(),
				logging.KeyFamily, res.addr.Family().String(),
				logging.KeyID, s.id)
			s.sink.Started(res.addr)

			go func() {
				defer recovery.RecoverWithLog(s.log, "socket reader")
				sock.readLoop(s.recvCh)
			}()

			// The first send happens right away; the scheduler only
			// paces the ones after it.
			if s.cfg.Interval > 0 {
				s.sendOne(nil)
				tickCh = s.sched.arm(s.cfg.Interval)
			}

		case <-tickCh:
			s.retireExpired()
			s.sendOne(nil)

		case req := <-s.sendCh:
			if s.State() == StateReady {
				s.retireExpired()
				s.sendOne(req.payload)
			}

		case d := <-s.recvCh:
			if d.err != nil {
				s.fail(&SocketError{Reason: DescriptorInvalid, Err: d.err}, "socket")
				return
			}
			s.handleDatagram(d)
		}
	}
}

// sendOne encodes and transmits the next echo request. Send failures are
// reported per occurrence and leave the session ready.
func (s *Session) sendOne(payload []byte) {
	seq := s.nextSeq
	s.nextSeq++ // wraps at 16 bits, matching the wire field

	if payload == nil {
		payload = s.fillerPayload()
	}

	b := packet.EncodeEchoRequest(s.sock.family, s.id, seq, payload)
	if _, err := s.sock.send(b); err != nil {
		s.met.SendFailures.Inc()
		s.log.Warn("send failed",
			logging.KeyHost, s.host,
			logging.KeySeq, seq,
			logging.KeyError, err)
		s.sink.SendFailed(seq, err)
		return
	}

	s.outstanding[seq] = time.Now()
	s.met.PacketsSent.Inc()
	s.log.Debug("request sent",
		logging.KeyHost, s.host,
		logging.KeySeq, seq,
		logging.KeySize, len(b))
	s.sink.Sent(seq)
}

// fillerPayload builds the default payload: the send time in the first eight
// bytes, classic ping fashion, then an incrementing pattern.
func (s *Session) fillerPayload() []byte {
	p := make([]byte, s.cfg.PayloadSize)
	for i := range p {
		p[i] = byte(i)
	}
	if len(p) >= 8 {
		binary.BigEndian.PutUint64(p[:8], uint64(time.Now().UnixNano()))
	}
	return p
}

// handleDatagram decodes and matches one received datagram. Anything that is
// not a matching echo reply becomes an Unexpected event, never an error.
func (s *Session) handleDatagram(d rawDatagram) {
	reply, err := packet.DecodeEchoReply(s.sock.family, d.data)
	if err != nil {
		s.unexpected(d.data, decodeCause(err))
		return
	}

	// Datagram ICMP sockets are demultiplexed by the kernel, which also
	// rewrites the identifier; only raw sockets see foreign sessions.
	if !s.sock.datagram && reply.ID != s.id {
		s.unexpected(d.data, "identifier mismatch")
		return
	}

	reply.From = d.from

	sentAt, ok := s.outstanding[reply.Seq]
	if !ok {
		s.unexpected(d.data, "no outstanding request")
		return
	}
	delete(s.outstanding, reply.Seq)

	rtt := time.Since(sentAt)
	s.met.PacketsReceived.Inc()
	s.met.RTT.Observe(rtt.Seconds())
	s.log.Debug("reply received",
		logging.KeyHost, s.host,
		logging.KeySeq, reply.Seq,
		logging.KeyRTT, rtt)
	s.sink.Received(reply.Seq, rtt, reply)
}

func (s *Session) unexpected(data []byte, reason string) {
	s.met.UnexpectedPackets.WithLabelValues(reason).Inc()
	s.log.Debug("unexpected packet",
		logging.KeyHost, s.host,
		logging.KeySize, len(data),
		"reason", reason)
	s.sink.Unexpected(data)
}

// retireExpired drops outstanding requests older than the timeout. Loss is
// silent: no event is emitted for a request that never got its reply.
func (s *Session) retireExpired() {
	cutoff := time.Now().Add(-s.cfg.Timeout)
	for seq, sentAt := range s.outstanding {
		if sentAt.Before(cutoff) {
			delete(s.outstanding, seq)
		}
	}
}

// fail tears the session down and reports the error. Teardown happens before
// the event so the sink observes a fully inert session.
func (s *Session) fail(err error, cause string) {
	s.teardown()
	s.setState(StateFailed)
	s.met.SessionsFailed.WithLabelValues(cause).Inc()
	s.log.Error("session failed",
		logging.KeyHost, s.host,
		logging.KeyError, err)
	s.sink.Failed(err)
}

// teardown cancels the scheduler and closes the socket. Idempotent;
// loop-owned.
func (s *Session) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true

	s.sched.cancel()
	if s.sock != nil {
		s.sock.close()
	}
	if s.cancelResolve != nil {
		s.cancelResolve()
	}
	s.met.SessionsActive.Dec()
}

// resolveCause maps a resolution error to a metrics label.
func resolveCause(err error) string {
	if rerr, ok := err.(*resolve.ResolutionError); ok {
		return rerr.Reason.String()
	}
	return "unknown"
}

// decodeCause maps a decode error to a metrics label.
func decodeCause(err error) string {
	if derr, ok := err.(*packet.DecodeError); ok {
		return derr.Reason.String()
	}
	return "unknown"
}
