package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// The error types below are the raw failure categories of a remote call.
// They are classified into client-facing errors by the faults package.

// ProtocolError is an HTTP-level failure: the server answered with a status
// other than 200.
type ProtocolError struct {
	URL        string
	Username   string
	StatusCode int
	Status     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %s", e.URL, e.Status)
}

// Fault is a remote procedure fault returned in the response body.
type Fault struct {
	Code    int
	Message string
	Name    string
}

func (e *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", e.Code, e.Message)
}

// ResponseError means the server answered 200 with a body that is not an RPC
// response, or whose result does not have the expected shape.
type ResponseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad response from %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("bad response from %s: %s", e.URL, e.Reason)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// TransportError means no response was obtained: the URL was unusable, the
// host could not be resolved or reached, or the call timed out.
type TransportError struct {
	URL      string
	Username string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
