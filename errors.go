package acontext

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind classifies a failure. The kind decides how callers react: the HTTP
// edge maps kinds to status codes, bus consumers decide between ack and
// retry, and agent loops feed validation errors back to the LLM.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
	KindLLM        Kind = "llm_error"
	KindValidation Kind = "validation"
)

// Error is the uniform error carrier for internal operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func BadRequest(msg string) *Error { return newError(KindBadRequest, msg) }
func NotFound(msg string) *Error   { return newError(KindNotFound, msg) }
func Conflict(msg string) *Error   { return newError(KindConflict, msg) }
func Validation(msg string) *Error { return newError(KindValidation, msg) }
func LLMError(msg string) *Error   { return newError(KindLLM, msg) }

// Internal wraps an unexpected failure (DB down, bus broken, panic).
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

func BadRequestf(format string, args ...any) *Error {
	return newError(KindBadRequest, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

func LLMErrorf(format string, args ...any) *Error {
	return newError(KindLLM, fmt.Sprintf(format, args...))
}

// KindOf extracts the kind from err. Errors that do not carry a kind are
// treated as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var llm *ErrLLM
	if errors.As(err, &llm) {
		return KindLLM
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// IsValidation reports whether err is a validation error. Agent loops feed
// these back to the LLM as tool responses instead of aborting.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// --- provider-layer errors ---

// ErrLLM is a model-level failure reported by an LLM or embedding provider.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a transport-level failure from a provider endpoint. The retry
// middleware inspects Status and RetryAfter.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value given in seconds.
// Returns 0 for empty or unparseable values (HTTP-date form is ignored).
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
