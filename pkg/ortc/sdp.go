package ortc

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// CapabilitiesFromSDP extracts the audio and video codecs an endpoint
// offers to receive from a session description.
func CapabilitiesFromSDP(raw string) (RtpCapabilities, error) {
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return RtpCapabilities{}, invalid("sdp: %v", err)
	}

	caps := RtpCapabilities{}
	for _, md := range desc.MediaDescriptions {
		kind := MediaKind(md.MediaName.Media)
		if !kind.Valid() {
			continue
		}

		for _, format := range md.MediaName.Formats {
			// payload types are 7 bits
			pt, err := strconv.ParseUint(format, 10, 7)
			if err != nil {
				continue
			}
			codec, err := desc.GetCodecForPayloadType(uint8(pt))
			if err != nil {
				// ignoring formats without rtpmap
				continue
			}

			c := &RtpCodecCapability{
				Kind:                 kind,
				MimeType:             string(kind) + "/" + codec.Name,
				PreferredPayloadType: uint8(pt),
				ClockRate:            codec.ClockRate,
				Parameters:           parseFmtp(codec.Fmtp),
			}
			if ch, err := strconv.Atoi(codec.EncodingParameters); err == nil {
				c.Channels = uint8(ch)
			}
			for _, fb := range codec.RTCPFeedback {
				parts := strings.SplitN(fb, " ", 2)
				f := RtcpFeedback{Type: parts[0]}
				if len(parts) == 2 {
					f.Parameter = parts[1]
				}
				c.RtcpFeedback = append(c.RtcpFeedback, f)
			}
			if err := validateRtpCodecCapability(c); err != nil {
				continue
			}

			dup := false
			for _, existing := range caps.Codecs {
				if capabilityMatch(existing, c) {
					dup = true
					break
				}
			}
			if !dup {
				caps.Codecs = append(caps.Codecs, c)
			}
		}
	}

	if len(caps.Codecs) == 0 {
		return caps, invalid("sdp carries no audio or video codecs")
	}
	return caps, nil
}

func parseFmtp(fmtp string) map[string]interface{} {
	if fmtp == "" {
		return nil
	}
	params := make(map[string]interface{})
	for _, kv := range strings.Split(fmtp, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if n, err := strconv.Atoi(parts[1]); err == nil {
			params[parts[0]] = n
			continue
		}
		params[parts[0]] = parts[1]
	}
	return params
}
