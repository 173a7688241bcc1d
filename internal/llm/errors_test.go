package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassFatal},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassRetryable},
		{name: "wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: ClassRetryable},
		{name: "caller cancelled", err: context.Canceled, want: ClassFatal},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutErr{}}, want: ClassRetryable},
		{name: "connection reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: ClassRetryable},
		{name: "connection refused", err: syscall.ECONNREFUSED, want: ClassRetryable},
		{name: "eof", err: io.EOF, want: ClassRetryable},
		{name: "overloaded text", err: errors.New("provider overloaded, try later"), want: ClassRetryable},
		{name: "429", err: StatusError(429, "slow down"), want: ClassRetryable},
		{name: "408", err: StatusError(408, "timeout"), want: ClassRetryable},
		{name: "500", err: StatusError(500, "boom"), want: ClassRetryable},
		{name: "400", err: StatusError(400, "bad"), want: ClassFatal},
		{name: "401", err: StatusError(401, "key"), want: ClassFatal},
		{name: "422", err: StatusError(422, "schema"), want: ClassFatal},
		{name: "explicit fatal wins over text", err: Fatal("connection reset in payload", nil), want: ClassFatal},
		{name: "unknown", err: errors.New("something odd"), want: ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAuth(t *testing.T) {
	if !IsAuth(fmt.Errorf("wrap: %w", StatusError(401, "bad key"))) {
		t.Fatalf("expected 401 to be an auth error")
	}
	if IsAuth(StatusError(500, "boom")) {
		t.Fatalf("500 is not an auth error")
	}
}
