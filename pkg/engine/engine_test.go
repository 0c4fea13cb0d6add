package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/logging"
	"github.com/pion/transport/test"
	"github.com/pion/transport/vnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVNetWorker(t *testing.T) *PionWorker {
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	n := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.4"}})
	require.NoError(t, wan.AddNet(n))
	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })

	w, err := NewWorker(Config{WebRTC: WebRTCConfig{GatherTimeout: 2 * time.Second}}, WithVNet(n))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func testCodecs() []*ortc.RtpCodecCapability {
	return []*ortc.RtpCodecCapability{
		{Kind: ortc.MediaKindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
		{Kind: ortc.MediaKindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
	}
}

func TestPionTransportLifecycle(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	ctx := context.Background()
	w := newVNetWorker(t)

	router, err := w.CreateRouter(ctx, testCodecs())
	require.NoError(t, err)
	assert.NotEmpty(t, router.ID())

	tr, err := router.CreateWebRtcTransport(ctx, WebRtcTransportOptions{
		EnableUDP:      true,
		PreferUDP:      true,
		EnableSCTP:     true,
		NumSctpStreams: ortc.NumSctpStreams{OS: 16, MIS: 16},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tr.IceParameters().UsernameFragment)
	assert.NotEmpty(t, tr.IceParameters().Password)
	require.NotEmpty(t, tr.IceCandidates())
	c := tr.IceCandidates()[0]
	assert.Equal(t, "1.2.3.4", c.IP)
	assert.Equal(t, "udp", c.Protocol)
	assert.Equal(t, "host", c.Type)

	dtls := tr.DtlsParameters()
	assert.Equal(t, ortc.DtlsRoleAuto, dtls.Role)
	require.NotEmpty(t, dtls.Fingerprints)
	assert.Equal(t, "sha-256", dtls.Fingerprints[0].Algorithm)

	sctp := tr.SctpParameters()
	require.NotNil(t, sctp)
	assert.Equal(t, uint16(ortc.SctpPort), sctp.Port)
	assert.Equal(t, uint16(16), sctp.OS)

	remote := ortc.DtlsParameters{Role: ortc.DtlsRoleClient, Fingerprints: []ortc.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}}}
	require.NoError(t, tr.Connect(ctx, remote))
	assert.Error(t, tr.Connect(ctx, remote))

	params := ortc.RtpParameters{
		Codecs:    []*ortc.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []*ortc.RtpEncodingParameters{{Ssrc: 1111}},
		Rtcp:      &ortc.RtcpParameters{Cname: "cname"},
	}
	p, err := tr.Produce(ctx, ProducerOptions{Kind: ortc.MediaKindAudio, RtpParameters: params})
	require.NoError(t, err)
	assert.Equal(t, ortc.MediaKindAudio, p.Kind())

	tr2, err := router.CreateWebRtcTransport(ctx, WebRtcTransportOptions{EnableUDP: true})
	require.NoError(t, err)
	assert.Nil(t, tr2.SctpParameters())

	codec := testCodecs()[0]
	cons, err := tr2.Consume(ctx, ConsumerOptions{Producer: p, Codec: codec})
	require.NoError(t, err)
	assert.Equal(t, p.ID(), cons.ProducerID())
	rp := cons.RtpParameters()
	require.Len(t, rp.Codecs, 1)
	assert.Equal(t, uint8(100), rp.Codecs[0].PayloadType)
	require.Len(t, rp.Encodings, 1)
	assert.NotZero(t, rp.Encodings[0].Ssrc)
	assert.Equal(t, "cname", rp.Rtcp.Cname)

	require.NoError(t, tr.Close())
	_, err = tr.Produce(ctx, ProducerOptions{Kind: ortc.MediaKindAudio, RtpParameters: params})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = tr2.Consume(ctx, ConsumerOptions{Producer: p, Codec: codec})
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, cons.Close())
	require.NoError(t, router.Close())
	_, err = router.CreateWebRtcTransport(ctx, WebRtcTransportOptions{EnableUDP: true})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCreateTransportWithoutNetwork(t *testing.T) {
	w := newVNetWorker(t)
	router, err := w.CreateRouter(context.Background(), testCodecs())
	require.NoError(t, err)

	_, err = router.CreateWebRtcTransport(context.Background(), WebRtcTransportOptions{EnableTCP: true})
	assert.ErrorIs(t, err, ErrNoNetwork)
}

func TestCreateRouterAfterClose(t *testing.T) {
	w := newVNetWorker(t)
	require.NoError(t, w.Close())
	_, err := w.CreateRouter(context.Background(), testCodecs())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSortCandidates(t *testing.T) {
	candidates := []ortc.IceCandidate{
		{Protocol: "udp", Priority: 10},
		{Protocol: "tcp", Priority: 5},
		{Protocol: "udp", Priority: 20},
	}
	sortCandidates(candidates, WebRtcTransportOptions{PreferTCP: true})
	assert.Equal(t, "tcp", candidates[0].Protocol)
	assert.Equal(t, uint32(20), candidates[1].Priority)

	sortCandidates(candidates, WebRtcTransportOptions{PreferUDP: true})
	assert.Equal(t, uint32(20), candidates[0].Priority)
	assert.Equal(t, "tcp", candidates[2].Protocol)
}

func TestFmtpLine(t *testing.T) {
	assert.Equal(t, "", fmtpLine(nil))
	assert.Equal(t, "minptime=10;useinbandfec=1", fmtpLine(map[string]interface{}{"useinbandfec": 1, "minptime": 10}))
}

type failingConn struct {
	net.PacketConn
	err error
}

func (c *failingConn) ReadFrom(p []byte) (int, net.Addr, error) {
	return 0, nil, c.err
}

func (c *failingConn) Close() error {
	return nil
}

func TestWatchedPacketConn(t *testing.T) {
	var got error
	broken := errors.New("socket gone")
	conn := newWatchedPacketConn(&failingConn{err: broken}, func(err error) { got = err })

	_, _, err := conn.ReadFrom(make([]byte, 8))
	assert.ErrorIs(t, err, broken)
	assert.ErrorIs(t, got, broken)

	got = nil
	require.NoError(t, conn.Close())
	_, _, _ = conn.ReadFrom(make([]byte, 8))
	assert.NoError(t, got)
}

func TestWorkerDiesOnce(t *testing.T) {
	w := newVNetWorker(t)
	first := errors.New("first")
	w.die(first)
	w.die(errors.New("second"))

	select {
	case err := <-w.Died():
		assert.Equal(t, first, err)
	case <-time.After(time.Second):
		t.Fatal("worker death not signalled")
	}
}
