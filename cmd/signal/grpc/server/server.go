package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/lucsky/cuid"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/pion/ion-ortc/pkg/signal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/pion/ion-ortc/cmd/signal/grpc/proto"
)

// SFUServer serves one session per Signal stream.
type SFUServer struct {
	pb.UnimplementedSignalServer
	Sessions *sfu.SessionManager
	Logger   logr.Logger
}

// NewServer returns a SignalServer creating sessions on m.
func NewServer(m *sfu.SessionManager, l logr.Logger) *SFUServer {
	return &SFUServer{Sessions: m, Logger: l}
}

// streamNotifier serializes writes to a stream.
type streamNotifier struct {
	mu     sync.Mutex
	stream pb.Signal_SignalServer
}

func (n *streamNotifier) send(m map[string]interface{}) error {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stream.Send(msg)
}

// Notify implements sfu.Notifier.
func (n *streamNotifier) Notify(method string, params interface{}) error {
	p, err := toJSONValue(params)
	if err != nil {
		return err
	}
	return n.send(map[string]interface{}{"method": method, "params": p})
}

// Signal creates a session for the stream and handles its requests until
// the client closes it. Closing the stream closes the session.
func (s *SFUServer) Signal(stream pb.Signal_SignalServer) error {
	id := cuid.New()
	n := &streamNotifier{stream: stream}
	session, err := s.Sessions.OnConnect(id, n)
	if err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer s.Sessions.OnDisconnect(id)

	logger := s.Logger.WithValues("session_id", id)
	logger.V(1).Info("signal stream opened")

	ctx := stream.Context()
	for {
		in, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if errStatus, _ := status.FromError(err); errStatus.Code() == codes.Canceled {
				return nil
			}
			logger.Error(err, "signal stream error")
			return err
		}
		go s.handle(ctx, logger, session, n, in.AsMap())
	}
}

func (s *SFUServer) handle(ctx context.Context, logger logr.Logger, session *sfu.Session, n *streamNotifier, in map[string]interface{}) {
	id := in["id"]
	method, _ := in["method"].(string)

	var params json.RawMessage
	if p, ok := in["params"]; ok {
		raw, err := json.Marshal(p)
		if err != nil {
			logger.Error(err, "encoding params", "method", method)
			return
		}
		params = raw
	}

	reply := map[string]interface{}{"id": id}
	result, err := signal.Handle(ctx, session, method, params)
	if err == nil {
		result, err = toJSONValue(result)
	}
	if err != nil {
		data := signal.NewErrorData(err)
		reply["error"] = map[string]interface{}{"error": data.Error, "detail": data.Detail}
	} else {
		reply["result"] = result
	}

	if id == nil {
		return
	}
	if err := n.send(reply); err != nil {
		logger.Error(err, "reply failed", "method", method)
	}
}

// toJSONValue converts v to the generic form structpb accepts.
func toJSONValue(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
