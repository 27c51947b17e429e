// Package resolve turns hostnames into probe target addresses.
package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/probeworks/echoprobe/internal/packet"
)

// AddressStyle selects which address family a resolved candidate may use.
type AddressStyle int

const (
	// StyleAny accepts the first address the resolver returns.
	StyleAny AddressStyle = iota
	// StyleForceIPv4 accepts only IPv4 addresses.
	StyleForceIPv4
	// StyleForceIPv6 accepts only IPv6 addresses.
	StyleForceIPv6
)

// String returns a human-readable name for the style.
func (s AddressStyle) String() string {
	switch s {
	case StyleAny:
		return "any"
	case StyleForceIPv4:
		return "ipv4"
	case StyleForceIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// ParseAddressStyle parses a config/flag value into an AddressStyle.
func ParseAddressStyle(s string) (AddressStyle, error) {
	switch s {
	case "", "any":
		return StyleAny, nil
	case "ipv4", "4":
		return StyleForceIPv4, nil
	case "ipv6", "6":
		return StyleForceIPv6, nil
	default:
		return StyleAny, fmt.Errorf("unknown address style %q", s)
	}
}

// Address is a resolved, family-tagged probe target.
type Address struct {
	IP netip.Addr
}

// Family returns the ICMP family matching the address.
func (a Address) Family() packet.Family {
	if a.IP.Is6() && !a.IP.Is4In6() {
		return packet.FamilyIPv6
	}
	return packet.FamilyIPv4
}

// String returns the textual form of the address.
func (a Address) String() string {
	return a.IP.String()
}

// LookupFunc is the name-service query used by a Resolver. It exists so tests
// can resolve without touching the network.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// DefaultTimeout bounds a resolution when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Resolver resolves hostnames with an address-family preference.
type Resolver struct {
	// Timeout applies when the caller's context carries no deadline.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// Lookup overrides the name-service query. Nil means the default
	// resolver.
	Lookup LookupFunc
}

// Resolve produces exactly one Address for host under the given style, or a
// *ResolutionError. Literal IP addresses resolve without a name-service query
// but are still checked against the style.
func (r *Resolver) Resolve(ctx context.Context, host string, style AddressStyle) (Address, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		addr := Address{IP: ip.Unmap()}
		if !styleAccepts(style, addr.IP) {
			return Address{}, &ResolutionError{Host: host, Reason: NoMatchingFamily, Style: style}
		}
		return addr, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lookup := r.Lookup
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}

	ips, err := lookup(ctx, host)
	if err != nil || len(ips) == 0 {
		return Address{}, &ResolutionError{Host: host, Reason: HostNotFound, Style: style, Err: err}
	}

	for _, ip := range ips {
		if styleAccepts(style, ip) {
			return Address{IP: ip.Unmap()}, nil
		}
	}

	return Address{}, &ResolutionError{Host: host, Reason: NoMatchingFamily, Style: style}
}

// styleAccepts reports whether ip satisfies the family preference.
// Static builds may hand back IPv4-mapped IPv6 addresses, which count as IPv4.
func styleAccepts(style AddressStyle, ip netip.Addr) bool {
	switch style {
	case StyleForceIPv4:
		return ip.Is4() || ip.Is4In6()
	case StyleForceIPv6:
		return ip.Is6() && !ip.Is4In6()
	default:
		return true
	}
}

// ResolutionReason classifies why a resolution failed.
type ResolutionReason int

const (
	// HostNotFound means the name-service query failed or returned nothing.
	HostNotFound ResolutionReason = iota
	// NoMatchingFamily means the host has addresses, but none in the
	// requested family.
	NoMatchingFamily
)

// String returns a human-readable name for the reason.
func (r ResolutionReason) String() string {
	switch r {
	case HostNotFound:
		return "host not found"
	case NoMatchingFamily:
		return "no address of requested family"
	default:
		return "unknown"
	}
}

// ResolutionError reports a failed hostname resolution.
type ResolutionError struct {
	Host   string
	Reason ResolutionReason
	Style  AddressStyle
	Err    error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Reason == NoMatchingFamily {
		return fmt.Sprintf("resolve %s: %s (%s)", e.Host, e.Reason, e.Style)
	}
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Host, e.Reason)
}

// Unwrap exposes the underlying name-service error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
