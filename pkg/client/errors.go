package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStale is returned by a list load that a newer load superseded.
var ErrStale = errors.New("client: superseded by a newer request")

// ValidationError carries field-level messages. Raised locally by the modal
// before any request, or decoded from a 400 response carrying fields.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// AuthError means the token is missing, expired or rejected. Callers send the
// user back to sign in rather than showing an inline message.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return "auth: " + e.Message
	}
	return "auth: not signed in"
}

// TimeoutError means the request did not finish within the client timeout.
type TimeoutError struct {
	Method string
	Path   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s timed out", e.Method, e.Path)
}

// ServerError is any other non-2xx response.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server: %d %s", e.Status, http.StatusText(e.Status))
}

// NetworkError wraps transport failures such as refused connections or DNS errors.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// Messages shown when the server did not supply one.
const (
	MsgValidation = "Please fix the highlighted fields"
	MsgAuth       = "Your session has expired, please sign in again"
	MsgTimeout    = "The request timed out, please refresh"
	MsgGeneric    = "Something went wrong, please try again"
	MsgNetwork    = "Could not reach the server, check your connection and try again"
)

// UserMessage picks the text a portal shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		valErr     *ValidationError
		authErr    *AuthError
		timeoutErr *TimeoutError
		serverErr  *ServerError
		netErr     *NetworkError
	)
	switch {
	case errors.As(err, &valErr):
		if valErr.Message != "" && len(valErr.Fields) == 0 {
			return valErr.Message
		}
		return MsgValidation
	case errors.As(err, &authErr):
		return MsgAuth
	case errors.As(err, &timeoutErr):
		return MsgTimeout
	case errors.As(err, &serverErr):
		if serverErr.Message != "" {
			return serverErr.Message
		}
		return MsgGeneric
	case errors.As(err, &netErr):
		return MsgNetwork
	default:
		return MsgGeneric
	}
}
