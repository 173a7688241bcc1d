package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Class tells the caller whether repeating a call can succeed.
type Class int

const (
	ClassFatal Class = iota
	ClassRetryable
)

func (c Class) String() string {
	if c == ClassRetryable {
		return "retryable"
	}
	return "fatal"
}

// Error is a classified model-client failure.
type Error struct {
	Class      Class
	StatusCode int
	// Auth marks credential or configuration failures; the client should be rebuilt.
	Auth    bool
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Class, e.StatusCode, msg)
	}
	return fmt.Sprintf("llm %s error: %s", e.Class, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable failure.
func Retryable(msg string, err error) *Error {
	return &Error{Class: ClassRetryable, Message: msg, Err: err}
}

// Fatal wraps err as a fatal failure.
func Fatal(msg string, err error) *Error {
	return &Error{Class: ClassFatal, Message: msg, Err: err}
}

// StatusError classifies a provider HTTP status.
func StatusError(status int, msg string) *Error {
	e := &Error{StatusCode: status, Message: msg, Class: ClassFatal}
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		e.Class = ClassRetryable
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Auth = true
	}
	return e
}

// Classify is the single place that decides whether an error is worth retrying.
// A cancelled caller context is fatal: it means shutdown, not a provider fault.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"connection closed",
		"broken pipe",
		"tls handshake timeout",
		"overloaded",
		"rate limit",
		"unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	return ClassFatal
}

// IsAuth reports whether err is a credential or configuration failure.
func IsAuth(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Auth
}
