package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/probeworks/echoprobe/internal/health"
	"github.com/probeworks/echoprobe/internal/packet"
	"github.com/probeworks/echoprobe/internal/probe"
	"github.com/probeworks/echoprobe/internal/resolve"
)

// reporter prints per-packet lines as session events arrive and accumulates
// the statistics for the final summary. It implements probe.EventSink for the
// session and health.StatsProvider for the health server.
type reporter struct {
	host    string
	count   int
	timeout time.Duration
	session *probe.Session

	done     chan struct{}
	doneOnce sync.Once

	mu         sync.Mutex
	addr       string
	sent       uint64
	received   uint64
	failures   uint64
	unexpected uint64
	err        error
	rttMin     time.Duration
	rttMax     time.Duration
	rttSum     time.Duration
}

func newReporter(host string, count int, timeout time.Duration) *reporter {
	return &reporter{
		host:    host,
		count:   count,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (r *reporter) Started(addr resolve.Address) {
	r.mu.Lock()
	r.addr = addr.String()
	r.mu.Unlock()

	fmt.Printf("PING %s (%s)\n", r.host, addr)
}

func (r *reporter) Failed(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	r.finish()
}

func (r *reporter) Sent(seq uint16) {
	r.mu.Lock()
	r.sent++
	last := r.count > 0 && r.sent >= uint64(r.count)
	r.mu.Unlock()

	if last {
		// Leave the last request its full window before wrapping up.
		go func() {
			select {
			case <-time.After(r.timeout):
			case <-r.done:
			}
			r.finish()
		}()
	}
}

func (r *reporter) SendFailed(seq uint16, err error) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()

	fmt.Fprintf(os.Stderr, "echoprobe: seq=%d send failed: %v\n", seq, err)
}

func (r *reporter) Received(seq uint16, rtt time.Duration, reply *packet.EchoReply) {
	r.mu.Lock()
	r.received++
	r.rttSum += rtt
	if r.rttMin == 0 || rtt < r.rttMin {
		r.rttMin = rtt
	}
	if rtt > r.rttMax {
		r.rttMax = rtt
	}
	addr := r.addr
	complete := r.count > 0 && r.received >= uint64(r.count)
	r.mu.Unlock()

	size := packet.HeaderLen + len(reply.Payload)
	fmt.Printf("%d bytes from %s: icmp_seq=%d time=%s\n", size, addr, seq, formatRTT(rtt))

	if complete {
		r.finish()
	}
}

func (r *reporter) Unexpected(data []byte) {
	r.mu.Lock()
	r.unexpected++
	r.mu.Unlock()
}

// IsRunning implements health.StatsProvider.
func (r *reporter) IsRunning() bool {
	return r.session != nil && r.session.State() == probe.StateReady
}

// Stats implements health.StatsProvider.
func (r *reporter) Stats() health.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := ""
	if r.session != nil {
		state = r.session.State().String()
	}
	return health.Stats{
		Host:            r.host,
		Address:         r.addr,
		State:           state,
		PacketsSent:     r.sent,
		PacketsReceived: r.received,
		SendFailures:    r.failures,
	}
}

func (r *reporter) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *reporter) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *reporter) printSummary(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(w, "\n--- %s ping statistics ---\n", r.host)

	loss := 0.0
	if r.sent > 0 {
		loss = 100 * float64(r.sent-r.received) / float64(r.sent)
	}
	fmt.Fprintf(w, "%s packets transmitted, %s received, %.1f%% packet loss\n",
		humanize.Comma(int64(r.sent)), humanize.Comma(int64(r.received)), loss)

	if r.unexpected > 0 {
		fmt.Fprintf(w, "%s unexpected packets\n", humanize.Comma(int64(r.unexpected)))
	}

	if r.received > 0 {
		avg := r.rttSum / time.Duration(r.received)
		fmt.Fprintf(w, "round-trip min/avg/max = %s/%s/%s\n",
			formatRTT(r.rttMin), formatRTT(avg), formatRTT(r.rttMax))
	}
}

// formatRTT renders a round-trip time in milliseconds with a stable width.
func formatRTT(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}
