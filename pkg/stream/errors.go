package stream

import "fmt"

// StreamError carries the partial content accumulated before a stream failed,
// so callers can preserve what was already generated.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.Partial == "" {
		return fmt.Sprintf("stream failed: %v", e.Err)
	}
	return fmt.Sprintf("stream failed after %d bytes: %v", len(e.Partial), e.Err)
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Err
}
