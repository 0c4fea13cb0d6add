// Package signal implements the request side of the signaling protocol:
// request schemas, validation at the boundary, dispatch to the session and
// the mapping of errors to the reasons clients see. Transports for the
// protocol live in cmd.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/pion/ion-ortc/pkg/stats"
)

// Logger is used by the signal package, cmd sets it.
var Logger logr.Logger = logr.Discard()

// RouterCapabilitiesResult is the result of getRouterCapabilities.
type RouterCapabilitiesResult struct {
	RouterRtpCapabilities ortc.RtpCapabilities `json:"routerRtpCapabilities"`
}

// TransportResult is the result of createWebRtcTransport.
type TransportResult struct {
	TransportOptions *sfu.TransportInfo `json:"transportOptions"`
}

// ConnectedResult is the result of connectWebRtcTransport.
type ConnectedResult struct {
	Connected bool `json:"connected"`
}

// ProduceResult is the result of produce.
type ProduceResult struct {
	ProducerID string `json:"producerId"`
}

// ClosedResult is the result of the close methods.
type ClosedResult struct {
	Closed bool `json:"closed"`
}

type handlerFunc func(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error)

var handlers = map[string]handlerFunc{
	MethodGetRouterCapabilities:  getRouterCapabilities,
	MethodCreateWebRtcTransport:  createWebRtcTransport,
	MethodConnectWebRtcTransport: connectWebRtcTransport,
	MethodProduce:                produce,
	MethodConsume:                consume,
	MethodCloseTransport:         closeTransport,
	MethodCloseProducer:          closeProducer,
	MethodCloseConsumer:          closeConsumer,
}

// Handle runs one request of session s and returns its result. Errors are
// meant to be passed to Reason; a panic in a handler is reported as an
// internal error.
func Handle(ctx context.Context, s *sfu.Session, method string, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", errPanic, r)
			Logger.Error(err, "recovered from panic", "method", method, "session_id", s.ID(), "stack", string(debug.Stack()))
		}
		stats.Request(method, Reason(err))
		if err != nil {
			Logger.V(1).Info("request failed", "method", method, "session_id", s.ID(), "reason", Reason(err), "err", err.Error())
		}
	}()

	h, ok := handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return h(ctx, s, params)
}

func getRouterCapabilities(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	if err := decode(params, &emptyRequest{}); err != nil {
		return nil, err
	}
	caps, err := s.GetRouterCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	return &RouterCapabilitiesResult{RouterRtpCapabilities: caps}, nil
}

func createWebRtcTransport(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &CreateWebRtcTransportRequest{}
	if err := decodeValid(params, req, req.validate); err != nil {
		return nil, err
	}
	info, err := s.CreateWebRtcTransport(ctx, req.options())
	if err != nil {
		return nil, err
	}
	return &TransportResult{TransportOptions: info}, nil
}

func connectWebRtcTransport(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &ConnectWebRtcTransportRequest{}
	if err := decodeValid(params, req, req.validate); err != nil {
		return nil, err
	}
	if err := s.ConnectWebRtcTransport(ctx, req.TransportID, *req.DtlsParameters); err != nil {
		return nil, err
	}
	return &ConnectedResult{Connected: true}, nil
}

func produce(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &ProduceRequest{}
	if err := decodeValid(params, req, req.validate); err != nil {
		return nil, err
	}
	id, err := s.Produce(ctx, sfu.ProduceRequest{
		TransportID:   req.TransportID,
		Kind:          ortc.MediaKind(req.Kind),
		RtpParameters: *req.RtpParameters,
		AppData:       req.AppData,
	})
	if err != nil {
		return nil, err
	}
	return &ProduceResult{ProducerID: id}, nil
}

func consume(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &ConsumeRequest{}
	if err := decodeValid(params, req, req.validate); err != nil {
		return nil, err
	}
	info, err := s.Consume(ctx, sfu.ConsumeRequest{
		TransportID:     req.TransportID,
		ProducerID:      req.ProducerID,
		RtpCapabilities: req.RtpCapabilities,
		SDP:             req.SDP,
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func closeTransport(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &closeTransportRequest{}
	if err := decodeValid(params, req, func() error { return requireID("transportId", req.TransportID) }); err != nil {
		return nil, err
	}
	return closed(s.CloseTransport(ctx, req.TransportID))
}

func closeProducer(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &closeProducerRequest{}
	if err := decodeValid(params, req, func() error { return requireID("producerId", req.ProducerID) }); err != nil {
		return nil, err
	}
	return closed(s.CloseProducer(ctx, req.ProducerID))
}

func closeConsumer(ctx context.Context, s *sfu.Session, params json.RawMessage) (interface{}, error) {
	req := &closeConsumerRequest{}
	if err := decodeValid(params, req, func() error { return requireID("consumerId", req.ConsumerID) }); err != nil {
		return nil, err
	}
	return closed(s.CloseConsumer(ctx, req.ConsumerID))
}

func decodeValid(params json.RawMessage, v interface{}, validate func() error) error {
	if err := decode(params, v); err != nil {
		return err
	}
	return validate()
}

func requireID(field, id string) error {
	if id == "" {
		return required(field)
	}
	return nil
}

func closed(err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return &ClosedResult{Closed: true}, nil
}
