package credentials

import (
	"errors"
	"fmt"
)

// AuthKind classifies an authentication failure.
type AuthKind int

const (
	// AuthMissing means no pool entry exists for the caller's key, either
	// because no key was sent or because the key is unknown or was rotated out.
	AuthMissing AuthKind = iota

	// AuthInvalid means the key has a pool entry but it yields no usable cookie.
	AuthInvalid
)

// String returns the kind name used in logs and metric labels.
func (k AuthKind) String() string {
	switch k {
	case AuthMissing:
		return "missing"
	case AuthInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("AuthKind(%d)", int(k))
	}
}

// AuthError is returned by Resolve when the caller cannot be authenticated.
type AuthError struct {
	Kind    AuthKind
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return "Authentication failed: " + e.Message
}

// IsMissing reports whether err is an AuthError of kind AuthMissing.
func IsMissing(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == AuthMissing
}

// IsAuthError reports whether err is an AuthError of any kind.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

var (
	// ErrMissingAPIKey is returned when a request carries no API key.
	ErrMissingAPIKey = &AuthError{Kind: AuthMissing, Message: "API key is missing"}

	// ErrClosed is returned by mutations on a closed Store.
	ErrClosed = errors.New("credential store is closed")
)
