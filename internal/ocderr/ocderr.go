// Package ocderr defines the error taxonomy shared by the transport, framer,
// session, and endurance layers. Every fatal condition in the core is
// reported as a tagged *Error rather than a bare string, so callers can
// branch on Kind instead of parsing messages.
package ocderr

import "fmt"

// Kind tags the category of failure. It is never derived from a Go type
// switch so that wrapping (fmt.Errorf with %w) doesn't lose the tag.
type Kind int

const (
	_ Kind = iota

	// Transport/framer faults. The transport and framer never retry; the
	// caller decides.
	LinkNotOpen
	LinkDown
	Timeout
	ShortRead
	BusCollision

	// Session preconditions.
	DeviceRunning
	DeviceStopped
	ReadProtected

	// Verification and capability failures.
	VerifyFailed
	UnsupportedByRevision
	ResetTimeout

	// Argument and data errors.
	InvalidAddressRange
	InvalidArgument
	HexCorrupt
	HexOverlap

	// File / child-process errors.
	IoError
)

var names = map[Kind]string{
	LinkNotOpen:           "link not open",
	LinkDown:              "link down",
	Timeout:               "timeout",
	ShortRead:             "short read",
	BusCollision:          "bus collision",
	DeviceRunning:         "device running",
	DeviceStopped:         "device stopped",
	ReadProtected:         "read protected",
	VerifyFailed:          "verify failed",
	UnsupportedByRevision: "unsupported by revision",
	ResetTimeout:          "reset timeout",
	InvalidAddressRange:   "invalid address range",
	InvalidArgument:       "invalid argument",
	HexCorrupt:            "hex corrupt",
	HexOverlap:            "hex overlap",
	IoError:               "io error",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the concrete error type returned from every core package. It
// carries a Kind for programmatic branching and a human message for the
// CLI boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or anything in its Unwrap chain) is an *Error of
// the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
