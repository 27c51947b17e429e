// Package packet encodes and decodes ICMP Echo Request/Reply messages.
//
// ICMP Echo layout (RFC 792 / RFC 4443):
//
//	Byte 0   : Type (IPv4: 8=request 0=reply; IPv6: 128=request 129=reply)
//	Byte 1   : Code (0 for echo)
//	Bytes 2-3: Checksum, network byte order
//	Bytes 4-5: Identifier, network byte order
//	Bytes 6-7: Sequence number, network byte order
//	Bytes 8+ : Payload
//
// The IPv4 checksum is the one's complement of the one's-complement sum over
// the whole message and is computed here. The IPv6 checksum covers a
// pseudo-header that only the kernel can see, so the codec leaves the field
// zero on encode and does not verify it on decode.
//
// IPv4 replies read from a raw socket arrive wrapped in the IP header; IPv6
// replies arrive as bare ICMPv6 messages. Decode handles both deliveries.
package packet

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// HeaderLen is the fixed ICMP echo header size in bytes.
	HeaderLen = 8

	// ProtocolICMP is the IANA protocol number for ICMPv4.
	ProtocolICMP = 1
	// ProtocolIPv6ICMP is the IANA protocol number for ICMPv6.
	ProtocolIPv6ICMP = 58

	// minIPv4HeaderLen is the smallest legal IPv4 header (IHL = 5 words).
	minIPv4HeaderLen = 20
)

// Family selects between the ICMPv4 and ICMPv6 message formats.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// String returns a human-readable name for the family.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Protocol returns the IANA protocol number for the family.
func (f Family) Protocol() int {
	if f == FamilyIPv6 {
		return ProtocolIPv6ICMP
	}
	return ProtocolICMP
}

// EchoReply is a decoded ICMP echo reply. From is the sender address,
// attached by the receive path; Decode leaves it nil.
type EchoReply struct {
	ID      uint16
	Seq     uint16
	Payload []byte
	From    net.Addr
}

// EncodeEchoRequest builds a wire-ready ICMP echo request for the given
// family. The IPv4 variant carries a computed checksum; the IPv6 variant
// leaves the checksum field zero for the kernel to fill in.
func EncodeEchoRequest(family Family, id, seq uint16, payload []byte) []byte {
	b := make([]byte, HeaderLen+len(payload))

	switch family {
	case FamilyIPv6:
		b[0] = byte(ipv6.ICMPTypeEchoRequest)
	default:
		b[0] = byte(ipv4.ICMPTypeEcho)
	}
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	copy(b[HeaderLen:], payload)

	if family == FamilyIPv4 {
		binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	}

	return b
}

// DecodeEchoReply parses a received datagram as an ICMP echo reply for the
// given family. For IPv4 a leading IP header, when present, is skipped using
// the IHL field. The input is never modified.
//
// Any validation failure returns a *DecodeError; callers classify that as an
// unexpected packet, not a transport failure.
func DecodeEchoReply(family Family, buf []byte) (*EchoReply, error) {
	msg := buf

	if family == FamilyIPv4 && len(msg) > 0 && msg[0]>>4 == 4 {
		// Raw sockets deliver the IPv4 header; datagram ICMP sockets do
		// not. A bare echo reply starts with type byte 0, so a version
		// nibble of 4 reliably marks a wrapped packet.
		ihl := int(msg[0]&0x0f) * 4
		if ihl < minIPv4HeaderLen || len(msg) < ihl {
			return nil, &DecodeError{Reason: ReasonTruncated}
		}
		msg = msg[ihl:]
	}

	if len(msg) < HeaderLen {
		return nil, &DecodeError{Reason: ReasonTruncated}
	}

	if family == FamilyIPv4 {
		if !validChecksum(msg) {
			return nil, &DecodeError{Reason: ReasonBadChecksum}
		}
		if msg[0] != byte(ipv4.ICMPTypeEchoReply) || msg[1] != 0 {
			return nil, &DecodeError{Reason: ReasonNotEchoReply, Type: msg[0], Code: msg[1]}
		}
	} else {
		if msg[0] != byte(ipv6.ICMPTypeEchoReply) || msg[1] != 0 {
			return nil, &DecodeError{Reason: ReasonNotEchoReply, Type: msg[0], Code: msg[1]}
		}
	}

	return &EchoReply{
		ID:      binary.BigEndian.Uint16(msg[4:6]),
		Seq:     binary.BigEndian.Uint16(msg[6:8]),
		Payload: append([]byte(nil), msg[HeaderLen:]...),
	}, nil
}

// validChecksum recomputes the ICMPv4 checksum with the checksum field zeroed
// and compares it against the received value.
func validChecksum(msg []byte) bool {
	want := binary.BigEndian.Uint16(msg[2:4])

	scratch := append([]byte(nil), msg...)
	scratch[2] = 0
	scratch[3] = 0

	return Checksum(scratch) == want
}

// Checksum computes the RFC 1071 internet checksum over b: sum the 16-bit
// words, fold the carries back into the low 16 bits, and complement.
func Checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// DecodeReason classifies why a datagram failed to decode as an echo reply.
type DecodeReason int

const (
	// ReasonTruncated means the buffer is too short for a valid message.
	ReasonTruncated DecodeReason = iota
	// ReasonBadChecksum means the ICMPv4 checksum did not verify.
	ReasonBadChecksum
	// ReasonNotEchoReply means the message is valid ICMP but not an echo
	// reply (for example a destination-unreachable).
	ReasonNotEchoReply
)

// String returns a human-readable name for the reason.
func (r DecodeReason) String() string {
	switch r {
	case ReasonTruncated:
		return "truncated"
	case ReasonBadChecksum:
		return "bad checksum"
	case ReasonNotEchoReply:
		return "not an echo reply"
	default:
		return "unknown"
	}
}

// DecodeError reports a datagram that did not validate as an echo reply.
type DecodeError struct {
	Reason DecodeReason
	Type   byte // ICMP type byte, set for ReasonNotEchoReply
	Code   byte // ICMP code byte, set for ReasonNotEchoReply
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Reason == ReasonNotEchoReply {
		return fmt.Sprintf("decode: %s (type=%d code=%d)", e.Reason, e.Type, e.Code)
	}
	return "decode: " + e.Reason.String()
}
