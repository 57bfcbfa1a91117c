// Package errs defines the closed set of failure kinds surfaced by the
// supervisor, the transport and the message broker. Every error carries the
// affected worker or session name and, where relevant, the attempt count and
// the underlying cause.
//
// Callers branch on kind with errors.Is against the exported sentinels and
// read structured context with errors.As:
//
//	if errors.Is(err, errs.ErrDelivery) { ... }
//	var e *errs.Error
//	if errors.As(err, &e) { fmt.Println(e.Name, e.Attempts) }
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure categories.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindTransport
	KindDelivery
	KindRecovery
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindTransport:
		return "transport"
	case KindDelivery:
		return "delivery"
	case KindRecovery:
		return "recovery"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. They compare equal to any *Error of the
// same kind.
var (
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrTransport = &Error{Kind: KindTransport}
	ErrDelivery  = &Error{Kind: KindDelivery}
	ErrRecovery  = &Error{Kind: KindRecovery}
	ErrConfig    = &Error{Kind: KindConfig}
)

// Error is the structured error value shared by all packages.
type Error struct {
	Kind     Kind
	Name     string
	Attempts int
	Op       string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("agent not found: %s", e.Name)
	case KindDelivery:
		msg := fmt.Sprintf("target agent not available: %s", e.Name)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	case KindRecovery:
		msg := fmt.Sprintf("failed to recover %s after %d attempts", e.Name, e.Attempts)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so the package sentinels match any error of the
// same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Name == "" && t.Op == "" && t.Err == nil && t.Attempts == 0
}

// NotFound reports an unknown roster name.
func NotFound(name string) error {
	return &Error{Kind: KindNotFound, Name: name}
}

// Transport wraps a failed session command.
func Transport(op, name string, cause error) error {
	return &Error{Kind: KindTransport, Op: op, Name: name, Err: cause}
}

// Delivery reports a message target that was unavailable at send time.
func Delivery(target string, cause error) error {
	return &Error{Kind: KindDelivery, Name: target, Err: cause}
}

// Recovery reports an exhausted recovery loop. cause is the last attempt's
// failure, if any.
func Recovery(name string, attempts int, cause error) error {
	return &Error{Kind: KindRecovery, Name: name, Attempts: attempts, Err: cause}
}

// Config reports a malformed roster or settings source.
func Config(source string, cause error) error {
	return &Error{Kind: KindConfig, Op: "load", Name: source, Err: cause}
}

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
