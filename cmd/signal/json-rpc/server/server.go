package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-logr/logr"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/pion/ion-ortc/pkg/signal"
	"github.com/sourcegraph/jsonrpc2"
)

// JSONSignal serves the signaling protocol of one websocket connection.
// Requests wait until Start binds the connection's session.
type JSONSignal struct {
	logger  logr.Logger
	session *sfu.Session
	ready   chan struct{}
}

// NewJSONSignal returns a handler, usually wrapped with
// jsonrpc2.AsyncHandler so requests run on their own goroutine.
func NewJSONSignal(l logr.Logger) *JSONSignal {
	return &JSONSignal{logger: l, ready: make(chan struct{})}
}

// Start binds the session requests are handled on.
func (p *JSONSignal) Start(s *sfu.Session) {
	p.session = s
	p.logger = p.logger.WithValues("session_id", s.ID())
	close(p.ready)
}

// Handle incoming RPC calls like createWebRtcTransport, produce and consume
func (p *JSONSignal) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	result, err := signal.Handle(ctx, p.session, req.Method, params)
	if req.Notif {
		return
	}
	if err != nil {
		p.replyError(ctx, conn, req, err)
		return
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		p.logger.Error(err, "reply failed", "method", req.Method)
	}
}

func (p *JSONSignal) replyError(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, err error) {
	reason := signal.Reason(err)
	var code int64
	switch {
	case errors.Is(err, signal.ErrUnknownMethod):
		code = jsonrpc2.CodeMethodNotFound
	case reason == signal.ReasonInvalidRequest:
		code = jsonrpc2.CodeInvalidParams
	case reason == signal.ReasonInternalError:
		code = jsonrpc2.CodeInternalError
	default:
		code = jsonrpc2.CodeInvalidRequest
	}

	rpcErr := &jsonrpc2.Error{Code: code, Message: reason}
	rpcErr.SetError(signal.NewErrorData(err))
	if err := conn.ReplyWithError(ctx, req.ID, rpcErr); err != nil {
		p.logger.Error(err, "reply failed", "method", req.Method)
	}
}

// Notifier sends session notifications as JSON-RPC notifications.
type Notifier struct {
	Conn *jsonrpc2.Conn
}

// Notify implements sfu.Notifier.
func (n *Notifier) Notify(method string, params interface{}) error {
	return n.Conn.Notify(context.Background(), method, params)
}
