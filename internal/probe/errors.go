package probe

import "fmt"

// SocketReason classifies socket failures.
type SocketReason int

const (
	// PermissionDenied means raw-socket privilege is unavailable.
	PermissionDenied SocketReason = iota
	// CreationFailed means the socket could not be created for another
	// reason.
	CreationFailed
	// DescriptorInvalid means an open socket stopped working; the session
	// cannot continue.
	DescriptorInvalid
)

// String returns a human-readable name for the reason.
func (r SocketReason) String() string {
	switch r {
	case PermissionDenied:
		return "permission denied"
	case CreationFailed:
		return "creation failed"
	case DescriptorInvalid:
		return "descriptor invalid"
	default:
		return "unknown"
	}
}

// SocketError reports a fatal probe socket failure.
type SocketError struct {
	Reason SocketReason
	Err    error
}

// Error implements the error interface.
func (e *SocketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("socket: %s: %v", e.Reason, e.Err)
	}
	return "socket: " + e.Reason.String()
}

// Unwrap exposes the underlying system error.
func (e *SocketError) Unwrap() error {
	return e.Err
}

// SendError reports one failed echo request transmission. It is transient:
// the session stays ready and later sends may succeed.
type SendError struct {
	Size int   // bytes that should have been written
	Sent int   // bytes actually written, for partial sends
	Err  error // underlying error, nil for a bare partial send
}

// Error implements the error interface.
func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send: %v", e.Err)
	}
	return fmt.Sprintf("send: partial write (%d of %d bytes)", e.Sent, e.Size)
}

// Unwrap exposes the underlying system error.
func (e *SendError) Unwrap() error {
	return e.Err
}
