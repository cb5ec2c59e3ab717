// Package mycoerr defines the error kinds surfaced by Myco's core
// protocol, following the teacher's convention of exported sentinel
// errors (see internal/ratelimit.ErrRateLimited) generalized with a Kind
// so callers can classify a wrapped cause without one sentinel per
// condition.
package mycoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol-level error.
type Kind int

const (
	// ProtocolViolation marks a broken batch precondition: BatchWrite
	// before BatchInit, a batch-size mismatch, a duplicate AddPrfKey, or
	// AddPrfKey called mid-epoch.
	ProtocolViolation Kind = iota
	// CryptoFailure marks an AEAD-open or bucket-MAC failure. Always
	// fatal to the affected message or bucket, never to the session.
	CryptoFailure
	// Capacity marks QueueWrite on a full staging buffer, or a path
	// whose buckets cannot accommodate a real block after greedy
	// placement.
	Capacity
	// StreamAborted marks a partial pathset; the receiver rolls back to
	// the pre-batch state.
	StreamAborted
	// UnknownEpoch marks a ReadNotifs request for an epoch outside the
	// retained window.
	UnknownEpoch
)

func (k Kind) String() string {
	switch k {
	case ProtocolViolation:
		return "ProtocolViolation"
	case CryptoFailure:
		return "CryptoFailure"
	case Capacity:
		return "Capacity"
	case StreamAborted:
		return "StreamAborted"
	case UnknownEpoch:
		return "UnknownEpoch"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a protocol Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind with a formatted message and no
// wrapped cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
