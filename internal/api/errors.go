package api

import "fmt"

// TransportError wraps a network, HTTP, or decode failure reaching the
// clinic backend. It is retryable by user action, never automatically.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessRejectionError carries a non-ok status explicitly returned by
// the backend. The message is authoritative and must be surfaced to the
// user verbatim; it is never retried silently.
type BusinessRejectionError struct {
	Op      string
	Message string
}

func (e *BusinessRejectionError) Error() string {
	return fmt.Sprintf("api: %s: rejected by backend: %s", e.Op, e.Message)
}
