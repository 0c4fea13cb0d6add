package sfu

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed or semantically invalid requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransportNotFound is returned when a transport is unknown to the session.
	ErrTransportNotFound = errors.New("transport not found")
	// ErrProducerNotFound is returned when a producer is not registered.
	ErrProducerNotFound = errors.New("producer not found")
	// ErrConsumerNotFound is returned when a consumer is unknown to the session.
	ErrConsumerNotFound = errors.New("consumer not found")
	// ErrIncompatibleCapabilities is returned when no codec can be negotiated.
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")
	// ErrSessionClosed is returned for requests on a closing or closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionExists is returned when a connection id is already in use.
	ErrSessionExists = errors.New("session already exists")
	// ErrMediaContextNotReady is returned while the media context is not Ready.
	ErrMediaContextNotReady = errors.New("media context not ready")
)

// FatalError reports a media context failure. The process cannot route media
// after one.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("media context fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func invalidRequest(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, a...))
}
