package chat

import "errors"

// Validation failures: the request is rejected as is and must not be retried.
var (
	ErrInvalidReceiver = errors.New("invalid receiver id")
	ErrInvalidPeer     = errors.New("invalid peer id")
	ErrEmptyMessage    = errors.New("message must contain text or image")
	ErrInvalidImage    = errors.New("invalid image payload")
)

// ErrReceiverNotFound means the receiver id is well formed but unknown.
var ErrReceiverNotFound = errors.New("receiver not found")

// ErrUpstream wraps a Blob Store or Message Store failure. A send that fails
// with it was not persisted.
var ErrUpstream = errors.New("upstream dependency failed")

// IsValidation reports whether err is one of the validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidReceiver) ||
		errors.Is(err, ErrInvalidPeer) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrInvalidImage)
}
