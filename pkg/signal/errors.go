package signal

import (
	"errors"

	"github.com/pion/ion-ortc/pkg/sfu"
)

// Reasons reported to clients.
const (
	ReasonInvalidRequest           = "InvalidRequest"
	ReasonTransportNotFound        = "TransportNotFound"
	ReasonProducerNotFound         = "ProducerNotFound"
	ReasonConsumerNotFound         = "ConsumerNotFound"
	ReasonIncompatibleCapabilities = "IncompatibleCapabilities"
	ReasonSessionClosed            = "SessionClosed"
	ReasonMediaContextNotReady     = "MediaContextNotReady"
	ReasonInternalError            = "InternalError"
)

var (
	// ErrUnknownMethod is returned for methods the server does not handle.
	ErrUnknownMethod = errors.New("unknown method")

	errPanic = errors.New("handler panic")
)

// Reason maps err to the stable reason sent to clients. Errors it does not
// know are internal.
func Reason(err error) string {
	var fatal *sfu.FatalError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, sfu.ErrInvalidRequest), errors.Is(err, ErrUnknownMethod):
		return ReasonInvalidRequest
	case errors.Is(err, sfu.ErrTransportNotFound):
		return ReasonTransportNotFound
	case errors.Is(err, sfu.ErrProducerNotFound):
		return ReasonProducerNotFound
	case errors.Is(err, sfu.ErrConsumerNotFound):
		return ReasonConsumerNotFound
	case errors.Is(err, sfu.ErrIncompatibleCapabilities):
		return ReasonIncompatibleCapabilities
	case errors.Is(err, sfu.ErrSessionClosed):
		return ReasonSessionClosed
	case errors.Is(err, sfu.ErrMediaContextNotReady), errors.As(err, &fatal):
		return ReasonMediaContextNotReady
	}
	return ReasonInternalError
}

// ErrorData is the structured error payload of a failed request.
type ErrorData struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewErrorData builds the payload for err.
func NewErrorData(err error) ErrorData {
	return ErrorData{Error: Reason(err), Detail: err.Error()}
}
