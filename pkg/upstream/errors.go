package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an upstream failure.
type ErrorKind int

const (
	// KindTransport covers connection failures and unexpected statuses.
	KindTransport ErrorKind = iota
	// KindTimeout covers the connect and idle read timeouts.
	KindTimeout
	// KindProtocol covers responses that violate the connect protocol.
	KindProtocol
	// KindAuth covers 401 and 403 responses, which mean the cookie was
	// rejected.
	KindAuth
)

// String returns the kind name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// UpstreamError describes a failed vendor call.
type UpstreamError struct {
	Kind ErrorKind

	// Endpoint is the vendor method, e.g. "StreamChat".
	Endpoint string

	// StatusCode is the HTTP status, or 0 when no response arrived.
	StatusCode int

	// Message is the response body excerpt or a description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("upstream %s %s error (status %d): %s", e.Endpoint, e.Kind, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s %s error: %s: %v", e.Endpoint, e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("upstream %s %s error: %s", e.Endpoint, e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an upstream rejection of the cookie.
func IsAuth(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == KindAuth
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == KindTimeout
}

// transportError classifies a client.Do failure. timedOut reports whether
// the connect timer fired.
func transportError(endpoint string, err error, timedOut bool) *UpstreamError {
	var netErr net.Error
	if timedOut || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Kind: KindTimeout, Endpoint: endpoint, Message: "timed out waiting for response", Err: err}
	}
	return &UpstreamError{Kind: KindTransport, Endpoint: endpoint, Message: "request failed", Err: err}
}
