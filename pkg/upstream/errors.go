// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package upstream

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError reports an upstream answer outside the 2xx range.
type StatusError struct {
	Status int    // Status is the HTTP status returned by the model server.
	Body   string // Body holds a bounded excerpt of the upstream response.
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upstream returned %d %s", e.Status, http.StatusText(e.Status))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// TimeoutError wraps a round trip that was cancelled or ran out of time.
type TimeoutError struct {
	Err error
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout: %v", e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}
