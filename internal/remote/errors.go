package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Message extracts the server's {"error": "..."} message, if any.
func (e *StatusError) Message() string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil {
		return body.Error
	}
	return ""
}

// TransportError means the request never produced a reply.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed send may succeed later unchanged:
// transport failures, timeouts, 408, 429 and 5xx. Any other 4xx is a
// rejection of the request itself.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return true
		}
		return false
	}
	return true
}

// IsRejection reports whether the server refused the request.
func IsRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !IsRetryable(err)
}
