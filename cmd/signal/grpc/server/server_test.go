package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/ion-ortc/pkg/engine/enginetest"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/pion/ion-ortc/cmd/signal/grpc/proto"
)

func newSignalClient(t *testing.T) (pb.Signal_SignalClient, *sfu.SessionManager) {
	mc := sfu.NewMediaContext(enginetest.NewWorker(), sfu.RouterConfig{})
	require.NoError(t, mc.Initialize(context.Background()))
	t.Cleanup(mc.Close)
	sessions := sfu.NewSessionManager(mc)

	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer(sessions, logr.Discard())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithInsecure())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := pb.NewSignalClient(conn).Signal(ctx)
	require.NoError(t, err)
	return stream, sessions
}

func request(t *testing.T, stream pb.Signal_SignalClient, id float64, method string, params map[string]interface{}) map[string]interface{} {
	msg := map[string]interface{}{"id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	req, err := structpb.NewStruct(msg)
	require.NoError(t, err)
	require.NoError(t, stream.Send(req))

	for {
		resp, err := stream.Recv()
		require.NoError(t, err)
		m := resp.AsMap()
		if m["id"] == id {
			return m
		}
	}
}

func TestSignalStream(t *testing.T) {
	stream, sessions := newSignalClient(t)

	resp := request(t, stream, 1, "getRouterCapabilities", nil)
	caps := resp["result"].(map[string]interface{})["routerRtpCapabilities"].(map[string]interface{})
	assert.Len(t, caps["codecs"], 2)
	assert.Len(t, sessions.Sessions(), 1)

	resp = request(t, stream, 2, "createWebRtcTransport", map[string]interface{}{
		"enableUdp": true, "enableTcp": false, "preferUdp": true,
	})
	transport := resp["result"].(map[string]interface{})["transportOptions"].(map[string]interface{})
	assert.NotEmpty(t, transport["id"])

	resp = request(t, stream, 3, "produce", map[string]interface{}{"transportId": "nope", "kind": "audio",
		"rtpParameters": map[string]interface{}{"codecs": []interface{}{}}})
	e := resp["error"].(map[string]interface{})
	assert.Equal(t, "TransportNotFound", e["error"])
	assert.NotEmpty(t, e["detail"])

	resp = request(t, stream, 4, "join", nil)
	assert.Equal(t, "InvalidRequest", resp["error"].(map[string]interface{})["error"])

	require.NoError(t, stream.CloseSend())
	require.Eventually(t, func() bool {
		return len(sessions.Sessions()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
