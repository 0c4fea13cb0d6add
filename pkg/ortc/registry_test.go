package ortc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCodecs() []*RtpCodecCapability {
	return []*RtpCodecCapability{
		{Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(defaultCodecs())
	require.NoError(t, err)

	caps := r.Capabilities()
	require.Len(t, caps.Codecs, 2)
	assert.Equal(t, uint8(96), caps.Codecs[0].PreferredPayloadType)
	assert.Equal(t, uint8(97), caps.Codecs[1].PreferredPayloadType)
	assert.Equal(t, MediaKindVideo, caps.Codecs[1].Kind)

	// Callers get copies.
	caps.Codecs[0].MimeType = "audio/PCMU"
	assert.Equal(t, "audio/opus", r.Capabilities().Codecs[0].MimeType)
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name   string
		codecs []*RtpCodecCapability
	}{
		{name: "empty", codecs: nil},
		{name: "bad mime", codecs: []*RtpCodecCapability{{MimeType: "opus", ClockRate: 48000}}},
		{name: "no clock rate", codecs: []*RtpCodecCapability{{MimeType: "audio/opus"}}},
		{name: "kind mismatch", codecs: []*RtpCodecCapability{{Kind: MediaKindVideo, MimeType: "audio/opus", ClockRate: 48000}}},
		{name: "duplicate", codecs: []*RtpCodecCapability{
			{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			{MimeType: "audio/OPUS", ClockRate: 48000, Channels: 2},
		}},
		{name: "duplicate payload type", codecs: []*RtpCodecCapability{
			{MimeType: "audio/opus", ClockRate: 48000, PreferredPayloadType: 100},
			{MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 100},
		}},
		{name: "rtx", codecs: []*RtpCodecCapability{{MimeType: "video/rtx", ClockRate: 90000}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.codecs)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestIntersect(t *testing.T) {
	r, err := NewRegistry(defaultCodecs())
	require.NoError(t, err)

	opus := &RtpCodecParameters{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}

	tests := []struct {
		name     string
		client   RtpCapabilities
		producer *RtpCodecParameters
		want     string
	}{
		{
			name:     "case insensitive mime",
			client:   RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "audio/OPUS", ClockRate: 48000, Channels: 2}}},
			producer: opus,
			want:     "audio/OPUS",
		},
		{
			name: "first match wins",
			client: RtpCapabilities{Codecs: []*RtpCodecCapability{
				{MimeType: "video/VP8", ClockRate: 90000},
				{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 100},
				{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 101},
			}},
			producer: opus,
			want:     "audio/opus",
		},
		{
			name:     "clock rate differs",
			client:   RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "audio/opus", ClockRate: 16000, Channels: 2}}},
			producer: opus,
		},
		{
			name:     "channels differ",
			client:   RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "audio/opus", ClockRate: 48000, Channels: 1}}},
			producer: opus,
		},
		{
			name:     "channels unset on client",
			client:   RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "audio/opus", ClockRate: 48000}}},
			producer: opus,
			want:     "audio/opus",
		},
		{
			name:     "empty client",
			client:   RtpCapabilities{},
			producer: opus,
		},
		{
			name:     "nil producer codec",
			client:   RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "audio/opus", ClockRate: 48000}}},
			producer: nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := r.Intersect(tt.client, tt.producer)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.MimeType)
		})
	}
}

func TestIntersectFirstMatchKeepsPayloadType(t *testing.T) {
	r, err := NewRegistry(defaultCodecs())
	require.NoError(t, err)

	client := RtpCapabilities{Codecs: []*RtpCodecCapability{
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 100},
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 101},
	}}
	got := r.Intersect(client, &RtpCodecParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2})
	require.NotNil(t, got)
	assert.Equal(t, uint8(100), got.PreferredPayloadType)
}

func TestNegotiateRequiresRouterSupport(t *testing.T) {
	r, err := NewRegistry(defaultCodecs())
	require.NoError(t, err)

	h264 := &RtpCodecParameters{MimeType: "video/H264", ClockRate: 90000, PayloadType: 102}
	client := RtpCapabilities{Codecs: []*RtpCodecCapability{{MimeType: "video/H264", ClockRate: 90000}}}

	assert.NotNil(t, r.Intersect(client, h264))
	assert.Nil(t, r.Negotiate(client, h264))
	assert.Nil(t, r.Supports(h264))
}

func TestH264PacketizationMode(t *testing.T) {
	r, err := NewRegistry([]*RtpCodecCapability{
		{MimeType: "video/H264", ClockRate: 90000, Parameters: map[string]interface{}{"packetization-mode": 1}},
	})
	require.NoError(t, err)

	mode1 := &RtpCodecParameters{MimeType: "video/h264", ClockRate: 90000, Parameters: map[string]interface{}{"packetization-mode": float64(1)}}
	mode0 := &RtpCodecParameters{MimeType: "video/h264", ClockRate: 90000}

	assert.NotNil(t, r.Supports(mode1))
	assert.Nil(t, r.Supports(mode0))
}

func TestNegotiateUsesRouterCodec(t *testing.T) {
	r, err := NewRegistry([]*RtpCodecCapability{
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{MimeType: "video/VP8", ClockRate: 90000, RtcpFeedback: []RtcpFeedback{
			{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "goog-remb"},
		}},
	})
	require.NoError(t, err)

	opus := &RtpCodecParameters{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}
	got := r.Negotiate(RtpCapabilities{Codecs: []*RtpCodecCapability{
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	}}, opus)
	require.NotNil(t, got)
	assert.Equal(t, uint8(96), got.PreferredPayloadType)

	vp8 := &RtpCodecParameters{MimeType: "video/VP8", PayloadType: 120, ClockRate: 90000}
	got = r.Negotiate(RtpCapabilities{Codecs: []*RtpCodecCapability{
		{MimeType: "video/vp8", ClockRate: 90000, PreferredPayloadType: 100, RtcpFeedback: []RtcpFeedback{
			{Type: "nack", Parameter: "pli"}, {Type: "transport-cc"},
		}},
	}}, vp8)
	require.NotNil(t, got)
	assert.Equal(t, uint8(97), got.PreferredPayloadType)
	assert.Equal(t, "video/VP8", got.MimeType)
	assert.Equal(t, []RtcpFeedback{{Type: "nack", Parameter: "pli"}}, got.RtcpFeedback)

	// The registry keeps its own feedback list.
	assert.Len(t, r.Capabilities().Codecs[1].RtcpFeedback, 3)
}
