package client

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx answer from the merge endpoint.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string // "error" field of the response body, if any
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
