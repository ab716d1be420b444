package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// StatusError is returned when the API answered with a status >= 400.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
	}
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Code)
}

// StatusCode extracts the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsUnreachable reports whether err is a transport failure where no HTTP
// status was received. Caller cancellation does not count.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := StatusCode(err); ok {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
