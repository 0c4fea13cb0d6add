package ortc

import (
	"errors"
	"strings"
	"sync"
)

var errNoPayloadTypes = errors.New("no free dynamic payload types")

const (
	dynamicPayloadTypeMin = 96
	dynamicPayloadTypeMax = 127
)

// Registry holds the codecs supported by a router. It is built once from
// static configuration and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	codecs []*RtpCodecCapability
}

// NewRegistry validates codecs and assigns a preferred payload type to every
// codec that does not carry one.
func NewRegistry(codecs []*RtpCodecCapability) (*Registry, error) {
	if len(codecs) == 0 {
		return nil, invalid("no media codecs")
	}

	used := make(map[uint8]bool)
	out := make([]*RtpCodecCapability, 0, len(codecs))
	for _, c := range codecs {
		if c == nil {
			return nil, invalid("null codec")
		}
		codec := c.Clone()
		if err := validateRtpCodecCapability(codec); err != nil {
			return nil, err
		}
		if strings.HasSuffix(strings.ToLower(codec.MimeType), "/rtx") {
			return nil, invalid("rtx codecs are not configurable")
		}
		for _, existing := range out {
			if capabilityMatch(existing, codec) {
				return nil, invalid("duplicated codec %s", codec)
			}
		}
		if codec.PreferredPayloadType != 0 {
			if used[codec.PreferredPayloadType] {
				return nil, invalid("duplicated preferredPayloadType %d", codec.PreferredPayloadType)
			}
			used[codec.PreferredPayloadType] = true
		}
		out = append(out, codec)
	}

	next := uint8(dynamicPayloadTypeMin)
	for _, codec := range out {
		if codec.PreferredPayloadType != 0 {
			continue
		}
		for used[next] && next < dynamicPayloadTypeMax {
			next++
		}
		if used[next] {
			return nil, errNoPayloadTypes
		}
		codec.PreferredPayloadType = next
		used[next] = true
	}

	return &Registry{codecs: out}, nil
}

// Capabilities returns a copy of the router capabilities.
func (r *Registry) Capabilities() RtpCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := RtpCapabilities{Codecs: make([]*RtpCodecCapability, 0, len(r.codecs))}
	for _, c := range r.codecs {
		caps.Codecs = append(caps.Codecs, c.Clone())
	}
	return caps
}

// Supports returns the registry codec matching a producer codec, or nil.
func (r *Registry) Supports(codec *RtpCodecParameters) *RtpCodecCapability {
	if codec == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.codecs {
		if codecMatch(codec, c) {
			return c.Clone()
		}
	}
	return nil
}

// Intersect returns the first codec the client can receive that matches the
// producer codec, or nil. No match is a regular negotiation outcome.
func (r *Registry) Intersect(client RtpCapabilities, producerCodec *RtpCodecParameters) *RtpCodecCapability {
	if producerCodec == nil {
		return nil
	}
	for _, c := range client.Codecs {
		if c == nil {
			continue
		}
		if codecMatch(producerCodec, c) {
			return c.Clone()
		}
	}
	return nil
}

// Negotiate returns the codec a consumer of producerCodec sends with: the
// router codec, keeping only the RTCP feedback the client accepts. It
// returns nil unless both the router and the client support the codec.
func (r *Registry) Negotiate(client RtpCapabilities, producerCodec *RtpCodecParameters) *RtpCodecCapability {
	codec := r.Supports(producerCodec)
	if codec == nil {
		return nil
	}
	remote := r.Intersect(client, producerCodec)
	if remote == nil {
		return nil
	}

	var feedback []RtcpFeedback
	for _, fb := range codec.RtcpFeedback {
		for _, rfb := range remote.RtcpFeedback {
			if fb == rfb {
				feedback = append(feedback, fb)
				break
			}
		}
	}
	codec.RtcpFeedback = feedback
	return codec
}

func codecMatch(a *RtpCodecParameters, b *RtpCodecCapability) bool {
	return match(a.MimeType, a.ClockRate, a.Channels, a.Parameters,
		b.MimeType, b.ClockRate, b.Channels, b.Parameters)
}

func capabilityMatch(a, b *RtpCodecCapability) bool {
	return match(a.MimeType, a.ClockRate, a.Channels, a.Parameters,
		b.MimeType, b.ClockRate, b.Channels, b.Parameters)
}

func match(aMime string, aClock uint32, aChannels uint8, aParams map[string]interface{},
	bMime string, bClock uint32, bChannels uint8, bParams map[string]interface{}) bool {
	mimeType := strings.ToLower(aMime)
	if mimeType != strings.ToLower(bMime) {
		return false
	}
	if aClock != bClock {
		return false
	}
	if strings.HasPrefix(mimeType, "audio/") && aChannels > 0 && bChannels > 0 && aChannels != bChannels {
		return false
	}

	switch mimeType {
	case "video/h264":
		a, _ := intParameter(aParams, "packetization-mode")
		b, _ := intParameter(bParams, "packetization-mode")
		if a != b {
			return false
		}
	case "video/vp9":
		a, _ := intParameter(aParams, "profile-id")
		b, _ := intParameter(bParams, "profile-id")
		if a != b {
			return false
		}
	}
	return true
}
