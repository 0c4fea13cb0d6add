package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/pion/ion-ortc/pkg/engine/enginetest"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/pion/ion-ortc/pkg/signal"
	"github.com/sourcegraph/jsonrpc2"
	websocketjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifications struct {
	mu      sync.Mutex
	methods []string
	params  []json.RawMessage
}

func (n *notifications) Handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif || req.Params == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, req.Method)
	n.params = append(n.params, *req.Params)
}

func (n *notifications) get() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.methods...)
}

func newTestServer(t *testing.T) (*Server, *enginetest.Worker, *httptest.Server) {
	w := enginetest.NewWorker()
	s, err := NewWithWorker(context.Background(), w, sfu.RouterConfig{}, logr.Discard(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, w, ts
}

func dial(t *testing.T, ts *httptest.Server) (*jsonrpc2.Conn, *notifications) {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	n := &notifications{}
	conn := jsonrpc2.NewConn(context.Background(), websocketjsonrpc2.NewObjectStream(c), n)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, n
}

func TestHealthz(t *testing.T) {
	_, w, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	w.Kill(errors.New("worker crashed"))
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFatalHandlerSetBeforeInitialize(t *testing.T) {
	w := enginetest.NewWorker()
	crash := errors.New("worker crashed")
	w.Kill(crash)

	fatal := make(chan error, 1)
	s, err := NewWithWorker(context.Background(), w, sfu.RouterConfig{}, logr.Discard(), func(err error) {
		fatal <- err
	})
	require.NoError(t, err)
	defer s.Close()

	select {
	case err := <-fatal:
		assert.ErrorIs(t, err, crash)
	case <-time.After(2 * time.Second):
		t.Fatal("fatal handler not called")
	}
}

func TestMetrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJSONRPCSession(t *testing.T) {
	s, _, ts := newTestServer(t)
	ctx := context.Background()

	publisher, _ := dial(t, ts)
	_, events := dial(t, ts)

	var caps signal.RouterCapabilitiesResult
	require.NoError(t, publisher.Call(ctx, signal.MethodGetRouterCapabilities, nil, &caps))
	assert.Len(t, caps.RouterRtpCapabilities.Codecs, 2)
	require.Eventually(t, func() bool { return len(s.Sessions().Sessions()) == 2 }, time.Second, 10*time.Millisecond)

	var transport struct {
		TransportOptions struct {
			ID string `json:"id"`
		} `json:"transportOptions"`
	}
	require.NoError(t, publisher.Call(ctx, signal.MethodCreateWebRtcTransport, map[string]interface{}{
		"enableUdp": true, "enableTcp": true, "preferUdp": true,
	}, &transport))
	require.NotEmpty(t, transport.TransportOptions.ID)

	var produced signal.ProduceResult
	require.NoError(t, publisher.Call(ctx, signal.MethodProduce, map[string]interface{}{
		"transportId": transport.TransportOptions.ID,
		"kind":        "audio",
		"rtpParameters": map[string]interface{}{
			"codecs": []interface{}{map[string]interface{}{
				"mimeType": "audio/opus", "payloadType": 111, "clockRate": 48000, "channels": 2,
			}},
			"encodings": []interface{}{map[string]interface{}{"ssrc": 1111}},
		},
	}, &produced))
	require.NotEmpty(t, produced.ProducerID)

	require.Eventually(t, func() bool {
		got := events.get()
		return len(got) == 1 && got[0] == sfu.NotificationNewProducer
	}, 2*time.Second, 10*time.Millisecond)

	err := publisher.Call(ctx, signal.MethodCloseTransport, map[string]interface{}{"transportId": "missing"}, nil)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), rpcErr.Code)
	assert.Equal(t, signal.ReasonTransportNotFound, rpcErr.Message)
	require.NotNil(t, rpcErr.Data)
	var data signal.ErrorData
	require.NoError(t, json.Unmarshal(*rpcErr.Data, &data))
	assert.Equal(t, signal.ReasonTransportNotFound, data.Error)

	err = publisher.Call(ctx, "join", nil, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)

	err = publisher.Call(ctx, signal.MethodCreateWebRtcTransport, map[string]interface{}{"enableUdp": true}, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
	assert.Equal(t, signal.ReasonInvalidRequest, rpcErr.Message)

	require.NoError(t, publisher.Close())
	require.Eventually(t, func() bool { return len(s.Sessions().Sessions()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
