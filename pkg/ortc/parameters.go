// Package ortc holds the RTP, ICE, DTLS and SCTP parameter model exchanged
// during signaling, its structural validation, and the codec capability
// registry of a router.
package ortc

import (
	"fmt"
	"strings"
)

// MediaKind is the kind of a media stream.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Valid reports whether k is one of the supported media kinds.
func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// RtpCapabilities define what a router or an endpoint can receive.
type RtpCapabilities struct {
	Codecs           []*RtpCodecCapability `json:"codecs"`
	HeaderExtensions []*RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// RtpCodecCapability describes a codec supported by a router or an endpoint.
type RtpCodecCapability struct {
	Kind                 MediaKind              `json:"kind"`
	MimeType             string                 `json:"mimeType"`
	PreferredPayloadType uint8                  `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32                 `json:"clockRate"`
	Channels             uint8                  `json:"channels,omitempty"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback         `json:"rtcpFeedback,omitempty"`
}

// Clone returns a deep copy of c.
func (c *RtpCodecCapability) Clone() *RtpCodecCapability {
	out := *c
	out.Parameters = cloneParameters(c.Parameters)
	out.RtcpFeedback = append([]RtcpFeedback(nil), c.RtcpFeedback...)
	return &out
}

func (c *RtpCodecCapability) String() string {
	if c.Channels > 0 {
		return fmt.Sprintf("%s/%d/%d", c.MimeType, c.ClockRate, c.Channels)
	}
	return fmt.Sprintf("%s/%d", c.MimeType, c.ClockRate)
}

// RtpHeaderExtension is a header extension supported by a router or an endpoint.
type RtpHeaderExtension struct {
	Kind        MediaKind `json:"kind,omitempty"`
	URI         string    `json:"uri"`
	PreferredID uint8     `json:"preferredId"`
	Direction   string    `json:"direction,omitempty"`
}

// RtcpFeedback is an RTCP feedback message type supported for a codec.
type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpParameters describe a media stream sent by a producer or sent to a consumer.
type RtpParameters struct {
	Mid              string                          `json:"mid,omitempty"`
	Codecs           []*RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []*RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []*RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters                 `json:"rtcp,omitempty"`
}

// RtpCodecParameters are the codec settings within RtpParameters.
type RtpCodecParameters struct {
	MimeType     string                 `json:"mimeType"`
	PayloadType  uint8                  `json:"payloadType"`
	ClockRate    uint32                 `json:"clockRate"`
	Channels     uint8                  `json:"channels,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback         `json:"rtcpFeedback,omitempty"`
}

// Kind derives the media kind from the mime type.
func (c *RtpCodecParameters) Kind() MediaKind {
	return MediaKind(strings.SplitN(strings.ToLower(c.MimeType), "/", 2)[0])
}

// IsRtx reports whether c describes a retransmission codec.
func (c *RtpCodecParameters) IsRtx() bool {
	return strings.HasSuffix(strings.ToLower(c.MimeType), "/rtx")
}

// RtpHeaderExtensionParameters is a header extension in use within RtpParameters.
type RtpHeaderExtensionParameters struct {
	URI        string                 `json:"uri"`
	ID         uint8                  `json:"id"`
	Encrypt    bool                   `json:"encrypt,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// RtpEncodingParameters describe one RTP stream of a producer or consumer.
type RtpEncodingParameters struct {
	Ssrc             uint32          `json:"ssrc,omitempty"`
	Rid              string          `json:"rid,omitempty"`
	CodecPayloadType *uint8          `json:"codecPayloadType,omitempty"`
	Rtx              *RtpEncodingRtx `json:"rtx,omitempty"`
	Dtx              bool            `json:"dtx,omitempty"`
	ScalabilityMode  string          `json:"scalabilityMode,omitempty"`
	MaxBitrate       uint32          `json:"maxBitrate,omitempty"`
}

// RtpEncodingRtx is the retransmission stream of an encoding.
type RtpEncodingRtx struct {
	Ssrc uint32 `json:"ssrc"`
}

// RtcpParameters are the RTCP settings within RtpParameters.
type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize *bool  `json:"reducedSize,omitempty"`
}

// MediaCodec returns the first non-RTX codec, which is the one a consumer
// has to be able to receive.
func (p *RtpParameters) MediaCodec() *RtpCodecParameters {
	for _, c := range p.Codecs {
		if !c.IsRtx() {
			return c
		}
	}
	return nil
}

func cloneParameters(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
