package ortc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const offer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 0\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n" +
	"a=rtcp-fb:111 transport-cc\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtcp-fb:96 nack pli\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
	"c=IN IP4 0.0.0.0\r\n"

func TestCapabilitiesFromSDP(t *testing.T) {
	caps, err := CapabilitiesFromSDP(offer)
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 4)

	opus := caps.Codecs[0]
	assert.Equal(t, "audio/opus", opus.MimeType)
	assert.Equal(t, MediaKindAudio, opus.Kind)
	assert.Equal(t, uint32(48000), opus.ClockRate)
	assert.Equal(t, uint8(2), opus.Channels)
	assert.Equal(t, uint8(111), opus.PreferredPayloadType)
	assert.Equal(t, 1, opus.Parameters["useinbandfec"])
	assert.Equal(t, []RtcpFeedback{{Type: "transport-cc"}}, opus.RtcpFeedback)

	vp8 := caps.Codecs[2]
	assert.Equal(t, "video/VP8", vp8.MimeType)
	assert.Equal(t, []RtcpFeedback{{Type: "nack", Parameter: "pli"}}, vp8.RtcpFeedback)

	r, err := NewRegistry(defaultCodecs())
	require.NoError(t, err)
	got := r.Intersect(caps, &RtpCodecParameters{MimeType: "video/vp8", ClockRate: 90000})
	require.NotNil(t, got)
	assert.Equal(t, uint8(96), got.PreferredPayloadType)
}

func TestCapabilitiesFromSDPErrors(t *testing.T) {
	_, err := CapabilitiesFromSDP("not an sdp")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	dataOnly := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n" +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\nc=IN IP4 0.0.0.0\r\n"
	_, err = CapabilitiesFromSDP(dataOnly)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestCapabilitiesFromSDPPayloadTypeRange(t *testing.T) {
	raw := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\nc=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 352\r\nc=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:352 H264/90000\r\n" +
		"a=rtpmap:96 VP8/90000\r\n"

	caps, err := CapabilitiesFromSDP(raw)
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 1)
	assert.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
}
