// Package engine defines the media engine the signaling layer drives, and an
// implementation of it on top of pion/webrtc's ORTC API.
//
// The engine owns the network side of things: ICE gathering, DTLS, SCTP and
// the objects media flows through. The signaling layer only creates, tracks
// and closes them.
package engine

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/pion/ion-ortc/pkg/ortc"
)

// Logger is used by the engine, cmd sets it.
var Logger logr.Logger = logr.Discard()

var (
	// ErrClosed is returned by operations on a closed engine object.
	ErrClosed = errors.New("engine object closed")
	// ErrNoNetwork is returned when a transport would have no candidates.
	ErrNoNetwork = errors.New("neither udp nor tcp enabled")
)

// Worker is the engine process. Its death is fatal to the routing domain.
type Worker interface {
	CreateRouter(ctx context.Context, codecs []*ortc.RtpCodecCapability) (Router, error)
	// Died is signalled once, with the cause, if the worker stops unexpectedly.
	Died() <-chan error
	Close() error
}

// Router is a routing domain created from a set of media codecs.
type Router interface {
	ID() string
	CreateWebRtcTransport(ctx context.Context, opts WebRtcTransportOptions) (Transport, error)
	Close() error
}

// Transport is an ICE+DTLS (and optionally SCTP) endpoint.
type Transport interface {
	ID() string
	IceParameters() ortc.IceParameters
	IceCandidates() []ortc.IceCandidate
	DtlsParameters() ortc.DtlsParameters
	SctpParameters() *ortc.SctpParameters
	// Connect records the remote DTLS parameters. It does not wait for the
	// handshake.
	Connect(ctx context.Context, remote ortc.DtlsParameters) error
	Produce(ctx context.Context, opts ProducerOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumerOptions) (Consumer, error)
	Close() error
}

// Producer is an inbound media stream.
type Producer interface {
	ID() string
	Kind() ortc.MediaKind
	RtpParameters() ortc.RtpParameters
	Close() error
}

// Consumer is an outbound media stream reading from a producer.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() ortc.MediaKind
	RtpParameters() ortc.RtpParameters
	Close() error
}

// WebRtcTransportOptions configure a new transport.
type WebRtcTransportOptions struct {
	EnableUDP      bool
	EnableTCP      bool
	PreferUDP      bool
	PreferTCP      bool
	EnableSCTP     bool
	NumSctpStreams ortc.NumSctpStreams
	AppData        map[string]interface{}
}

// ProducerOptions configure a new producer. RtpParameters are validated.
type ProducerOptions struct {
	Kind          ortc.MediaKind
	RtpParameters ortc.RtpParameters
	AppData       map[string]interface{}
}

// ConsumerOptions configure a new consumer of Producer using the negotiated
// Codec.
type ConsumerOptions struct {
	Producer Producer
	Codec    *ortc.RtpCodecCapability
	AppData  map[string]interface{}
}

// ConsumerRtpParameters derives the parameters a consumer sends with from
// its producer's parameters and the negotiated codec.
func ConsumerRtpParameters(producer ortc.RtpParameters, codec *ortc.RtpCodecCapability, ssrc uint32) ortc.RtpParameters {
	params := ortc.RtpParameters{
		Codecs: []*ortc.RtpCodecParameters{{
			MimeType:     codec.MimeType,
			PayloadType:  codec.PreferredPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   codec.Parameters,
			RtcpFeedback: codec.RtcpFeedback,
		}},
		Encodings: []*ortc.RtpEncodingParameters{{Ssrc: ssrc}},
		Rtcp:      &ortc.RtcpParameters{},
	}
	if producer.Rtcp != nil {
		params.Rtcp.Cname = producer.Rtcp.Cname
	}
	reduced := true
	params.Rtcp.ReducedSize = &reduced
	return params
}
