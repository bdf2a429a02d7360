// Package errs implements the closed error taxonomy of spec §7.
//
// The teacher's pkg/rtcerr defines one Go type per W3C error name. Our
// taxonomy is closed and call sites need to switch on the kind (a timeout
// is retried, a protocol error is not), so a single Error carrying a Kind
// is a better fit than one type per kind — the same wrap-and-Unwrap shape,
// adapted to a table instead of a type per entry.
package errs

import "fmt"

// Kind enumerates the error taxonomy of spec.md §7.
type Kind int

const (
	// Syscall: a kernel call failed; Detail carries errno.
	Syscall Kind = iota + 1
	// Timeout: an idle or handshake deadline expired.
	Timeout
	// Protocol: bad STUN, DTLS alert, malformed SDP, SCTP abort.
	Protocol
	// Resolve: DNS failure during client connect.
	Resolve
	// Local: application-initiated close.
	Local
	// Remote: peer-initiated close.
	Remote
	// Migrated: ownership transferred; not an error per se.
	Migrated
	// Shutdown: graceful factory teardown.
	Shutdown
	// Alloc: allocation failure.
	Alloc
	// Invalid: invalid argument or state.
	Invalid
	// NotSupported: requested behavior is not implemented.
	NotSupported
	// Goaway: in-flight work was cancelled because the peer/connection went away.
	Goaway
	// Callback: an application callback misbehaved.
	Callback
)

func (k Kind) String() string {
	switch k {
	case Syscall:
		return "SYSCALL"
	case Timeout:
		return "TIMEOUT"
	case Protocol:
		return "PROTOCOL"
	case Resolve:
		return "RESOLVE"
	case Local:
		return "LOCAL"
	case Remote:
		return "REMOTE"
	case Migrated:
		return "MIGRATED"
	case Shutdown:
		return "SHUTDOWN"
	case Alloc:
		return "ALLOC"
	case Invalid:
		return "INVALID"
	case NotSupported:
		return "NOT_SUPPORTED"
	case Goaway:
		return "GOAWAY"
	case Callback:
		return "CALLBACK"
	default:
		return "UNKNOWN"
	}
}

// Error is the wrapper every layer translates its native errors into before
// it crosses a component boundary (session -> connection -> application).
type Error struct {
	Kind   Kind
	Detail int // errno or protocol-specific detail code; 0 if unused
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithDetail builds an Error carrying a detail code, e.g. an errno.
func WithDetail(kind Kind, detail int, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == k
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
