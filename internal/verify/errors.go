package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Image roles, used as error and log context.
const (
	RoleCapture   = "capture"
	RoleReference = "reference"
)

// ImageDecodeError reports a payload that is not a decodable image.
type ImageDecodeError struct {
	Role string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode %s image: %v", e.Role, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// RemoteFetchError reports a reference URL that could not be fetched.
// StatusCode is zero when no HTTP response was received.
type RemoteFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch reference image: upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch reference image: %v", e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying the fetch may succeed.
func (e *RemoteFetchError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(e.Err, &timeout) && timeout.Timeout()
}

// FaceProcessingError reports a detector or extractor failure on an image
// that decoded successfully.
type FaceProcessingError struct {
	Stage string
	Role  string
	Err   error
}

func (e *FaceProcessingError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("face %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("face %s on %s image: %v", e.Stage, e.Role, e.Err)
}

func (e *FaceProcessingError) Unwrap() error { return e.Err }
