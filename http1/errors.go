package http1

import (
	"fmt"

	"github.com/owacoder/skate-reactor/reactor"
)

// ParseError wraps a parse failure with the field that caused it.
// AsReactorError turns any ParseError into a reactor.Error with
// reactor.BadMessageKind, so a socket's error hook can branch on Kind
// without importing this package, per spec.md §7.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("http1: %s: %v", e.Reason, e.Cause)
	}
	return "http1: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Cause }

// AsReactorError converts a ParseError into the reactor.Error a socket's
// error hook receives.
func (e *ParseError) AsReactorError(fd int) *reactor.Error {
	return &reactor.Error{Kind: reactor.BadMessageKind, FD: fd, Op: "parse", Err: e}
}

func badMessage(reason string) error { return &ParseError{Reason: reason} }

func badMessageWrap(reason string, cause error) error {
	return &ParseError{Reason: reason, Cause: cause}
}
