// Package probe implements ICMP echo probing sessions.
//
// A Session owns one probing run against one host: it resolves the hostname,
// opens an ICMP socket for the resolved family, transmits echo requests on a
// periodic cadence (or on demand), and matches incoming echo replies against
// the requests it has outstanding. Lifecycle and per-packet outcomes are
// reported through an EventSink; the engine itself keeps no statistics and
// performs no presentation.
//
// # Architecture
//
// All session state lives on a single event-loop goroutine:
//
//  1. Start spawns the loop and kicks off asynchronous resolution
//  2. The resolved address opens a socket; the session becomes ready and
//     emits Started
//  3. Entering ready triggers one immediate send; a ticker drives the
//     subsequent periodic sends
//  4. A reader goroutine hands raw datagrams to the loop, where they are
//     decoded and matched
//  5. Stop tears down the ticker and socket synchronously; once Stop
//     returns, no further events are delivered
//
// Resolution failures and fatal socket errors terminate the session with a
// single Failed event. Per-packet problems (send failure, malformed or
// mismatched datagram) are reported per occurrence and leave the session
// ready.
//
// # Unprivileged ICMP
//
// By default sessions use ICMP datagram sockets ("udp4"/"udp6"), which on
// Linux require the ping_group_range sysctl:
//
//	sysctl -w net.ipv4.ping_group_range="0 65535"
//
// Privileged mode switches to raw sockets, where IPv4 replies arrive wrapped
// in their IP header and identifier matching is enforced by the session
// rather than by kernel demux.
package probe
