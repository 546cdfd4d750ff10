package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidID is returned when an actor or key id is not an absolute
	// http(s) URL.
	ErrInvalidID = errors.New("resolver: invalid actor id")

	// ErrInvalidHandle is returned when a handle is not of the form
	// user@domain.
	ErrInvalidHandle = errors.New("resolver: invalid handle")

	// ErrNotFound is returned when the remote server answers 404.
	ErrNotFound = errors.New("resolver: not found")

	// ErrGone is returned when the remote server answers 410. A gone actor
	// is the expected outcome when verifying that actor's own Delete.
	ErrGone = errors.New("resolver: gone")

	// ErrUnexpectedStatus is returned for any other non-2xx response.
	ErrUnexpectedStatus = errors.New("resolver: unexpected status")

	// ErrInvalidDocument is returned when a fetched document cannot be
	// decoded or lacks the inbox or key material.
	ErrInvalidDocument = errors.New("resolver: invalid document")

	// ErrKeyNotFound is returned when the actor does not publish the
	// requested key id.
	ErrKeyNotFound = errors.New("resolver: key not found")

	// ErrNoActorLink is returned when a webfinger document has no self
	// link to an activity document.
	ErrNoActorLink = errors.New("resolver: no actor link in webfinger document")
)

// FetchError describes a failed remote fetch. StatusCode is zero when no
// response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("resolver: fetch %s: %v", e.URL, e.Err)
	}

	return fmt.Sprintf("resolver: fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsGone reports whether err records a 410 response.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone)
}
