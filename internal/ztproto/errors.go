package ztproto

import "errors"

// Kind classifies an adapter error into the taxonomy user operations are
// completed with. It is the single exported enum every deterministic
// mapping function in this package and in internal/overlay translates into.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindAddressInvalid
	KindAddressInUse
	KindClosed
	KindTimedOut
	KindConnectionRefused
	KindProtocolError
	KindMessageTooLarge
	KindOutOfMemory
	KindUnsupported
	KindInternal
	KindInvalid
	KindPermission
)

// String renders the kind's wire/log name.
func (k Kind) String() string {
	switch k {
	case KindAddressInvalid:
		return "address-invalid"
	case KindAddressInUse:
		return "address-in-use"
	case KindClosed:
		return "closed"
	case KindTimedOut:
		return "timed-out"
	case KindConnectionRefused:
		return "connection-refused"
	case KindProtocolError:
		return "protocol-error"
	case KindMessageTooLarge:
		return "message-too-large"
	case KindOutOfMemory:
		return "out-of-memory"
	case KindUnsupported:
		return "unsupported"
	case KindInternal:
		return "internal"
	case KindInvalid:
		return "invalid"
	case KindPermission:
		return "permission"
	default:
		return "unspecified"
	}
}

// Error wraps a Kind with a human-readable message so callers can both
// pattern-match (errors.Is against the sentinels below, or a Kind()
// accessor) and log something useful.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

// NewError constructs an *Error of the given kind.
func NewError(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// KindOf extracts the Kind carried by err, or KindInternal if err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors for conditions with a single fixed message, wrapped by
// fmt.Errorf("%w") at call sites that need more context.
var (
	ErrClosed            = NewError(KindClosed, "endpoint or pipe is closed")
	ErrAddressInvalid    = NewError(KindAddressInvalid, "address is not valid for this operation")
	ErrAddressInUse      = NewError(KindAddressInUse, "address already bound")
	ErrTimedOut          = NewError(KindTimedOut, "operation timed out")
	ErrConnectionRefused = NewError(KindConnectionRefused, "peer refused the connection")
	ErrProtocolError     = NewError(KindProtocolError, "protocol violation")
	ErrMessageTooLarge   = NewError(KindMessageTooLarge, "message exceeds the negotiated limit")
)
