package catalog

import (
	"errors"
	"fmt"
)

// ErrArtistNotFound is returned when the upstream search yields no
// artist for the requested name.
var ErrArtistNotFound = errors.New("artist not found")

// AuthError reports a failed credential exchange with the upstream
// token endpoint. Fatal to the whole run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a metadata API call that failed permanently,
// after retries where the failure warranted them. Status is zero when
// the upstream never answered; Err then carries the transport cause.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream unreachable: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StorageError reports a failed staging write for one collection.
type StorageError struct {
	Collection string
	Key        string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("staging write failed for %s (%s): %v", e.Collection, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
