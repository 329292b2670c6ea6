package azure

import (
	"fmt"
)

// AuthError is returned when the identity provider does not issue a usable
// bearer token. It is fatal for an export run.
type AuthError struct {
	Code        string
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("azure: auth failed: %s: %s", e.Code, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("azure: auth failed: %v", e.Err)
	default:
		return "azure: auth failed: " + e.Description
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-200 response from the management API.
type APIError struct {
	URL        string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure: HTTP %d from %s: %s: %s", e.StatusCode, e.URL, e.Code, e.Message)
}

// TransportError covers everything between "request built" and "page decoded"
// that is not an HTTP status problem: dial failures, timeouts, truncated or
// malformed bodies.
type TransportError struct {
	URL string
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("azure: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
