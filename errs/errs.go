// Package errs provides structured error types shared across the framework.
package errs

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Code identifies a failure category reported by a collaborator.
type Code string

const (
	// CodeNetwork indicates a transport-level failure.
	CodeNetwork Code = "network"
	// CodeRateLimited indicates the remote throttled the request.
	CodeRateLimited Code = "rate_limited"
	// CodeAuth indicates authentication or authorization was rejected.
	CodeAuth Code = "auth"
	// CodeInvalid indicates the request was malformed or unsupported.
	CodeInvalid Code = "invalid_request"
	// CodeConflict indicates the remote refused because another consumer is active.
	CodeConflict Code = "conflict"
	// CodeDecode indicates the response violated the wire contract.
	CodeDecode Code = "decode"
	// CodeRemote indicates a remote-side failure.
	CodeRemote Code = "remote"
	// CodeCanceled indicates the caller's context ended the attempt.
	CodeCanceled Code = "canceled"
	// CodeUnavailable indicates the remote is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// Class tells the polling engine whether an error ends the sequence.
type Class string

const (
	// ClassUnknown defers classification to the error code.
	ClassUnknown Class = ""
	// ClassRecoverable marks failures that are retried with backoff.
	ClassRecoverable Class = "recoverable"
	// ClassFatal marks failures that terminate the sequence.
	ClassFatal Class = "fatal"
)

// E captures structured error information produced across the framework.
type E struct {
	Op         string
	Code       Code
	Class      Class
	HTTP       int
	RetryAfter time.Duration
	Message    string
	RawMsg     string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:         strings.TrimSpace(op),
		Code:       code,
		Class:      ClassUnknown,
		HTTP:       0,
		RetryAfter: 0,
		Message:    "",
		RawMsg:     "",
		cause:      nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawMessage captures the raw remote error description.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithRetryAfter records how long the remote asked the client to wait.
func WithRetryAfter(d time.Duration) Option {
	return func(e *E) {
		if d > 0 {
			e.RetryAfter = d
		}
	}
}

// WithClass overrides the recoverability class derived from the code.
func WithClass(class Class) Option {
	return func(e *E) {
		e.Class = class
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	parts = append(parts, "class="+string(e.EffectiveClass()))

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, "retry_after="+e.RetryAfter.String())
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// EffectiveClass resolves the recoverability class, consulting the code when
// no explicit class was set.
func (e *E) EffectiveClass() Class {
	if e == nil {
		return ClassRecoverable
	}
	if e.Class != ClassUnknown {
		return e.Class
	}
	return defaultClass(e.Code)
}

func defaultClass(code Code) Class {
	switch code {
	case CodeAuth, CodeInvalid, CodeConflict, CodeDecode:
		return ClassFatal
	case CodeNetwork, CodeRateLimited, CodeRemote, CodeCanceled, CodeUnavailable:
		return ClassRecoverable
	default:
		return ClassRecoverable
	}
}

// Classify resolves the recoverability class of an arbitrary error. Errors
// that do not carry an envelope classify as recoverable.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var e *E
	if errors.As(err, &e) {
		return e.EffectiveClass()
	}
	return ClassRecoverable
}

// IsFatal reports whether the error terminates the sequence it occurred in.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}

// IsRecoverable reports whether the error is retried with backoff.
func IsRecoverable(err error) bool {
	return Classify(err) == ClassRecoverable
}

// CodeOf extracts the error code, or the empty code for foreign errors.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// RetryAfterOf reports the remote-requested wait, when one was attached.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *E
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// Canceled wraps a context error observed during the named operation.
func Canceled(op string, cause error) *E {
	return New(op, CodeCanceled, WithCause(cause))
}
