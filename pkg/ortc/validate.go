package ortc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
)

// ErrInvalidParameters is wrapped by every structural validation failure.
var ErrInvalidParameters = errors.New("invalid parameters")

func invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, a...))
}

// ValidateRtpCapabilities checks caps and fills in defaults (codec kind,
// audio channels).
func ValidateRtpCapabilities(caps *RtpCapabilities) error {
	if caps == nil {
		return invalid("missing rtpCapabilities")
	}
	for _, codec := range caps.Codecs {
		if err := validateRtpCodecCapability(codec); err != nil {
			return err
		}
	}
	for _, ext := range caps.HeaderExtensions {
		if ext == nil || ext.URI == "" {
			return invalid("missing headerExtension.uri")
		}
	}
	return nil
}

func validateRtpCodecCapability(codec *RtpCodecCapability) error {
	if codec == nil {
		return invalid("null codec")
	}
	mimeType := strings.ToLower(codec.MimeType)
	if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/") {
		return invalid("invalid codec.mimeType %q", codec.MimeType)
	}
	kind := MediaKind(strings.SplitN(mimeType, "/", 2)[0])
	if codec.Kind != "" && codec.Kind != kind {
		return invalid("codec.kind %q does not match mimeType %q", codec.Kind, codec.MimeType)
	}
	codec.Kind = kind

	if codec.ClockRate == 0 {
		return invalid("missing codec.clockRate")
	}
	if kind == MediaKindAudio && codec.Channels == 0 {
		codec.Channels = 1
	}
	for _, fb := range codec.RtcpFeedback {
		if fb.Type == "" {
			return invalid("missing rtcpFeedback.type")
		}
	}
	return nil
}

// ValidateRtpParameters checks the parameters a producer sends with.
func ValidateRtpParameters(params *RtpParameters) error {
	if params == nil {
		return invalid("missing rtpParameters")
	}
	if len(params.Codecs) == 0 {
		return invalid("empty rtpParameters.codecs")
	}

	payloadTypes := make(map[uint8]*RtpCodecParameters, len(params.Codecs))
	for _, codec := range params.Codecs {
		if err := validateRtpCodecParameters(codec); err != nil {
			return err
		}
		if _, dup := payloadTypes[codec.PayloadType]; dup {
			return invalid("duplicated codec.payloadType %d", codec.PayloadType)
		}
		payloadTypes[codec.PayloadType] = codec
	}

	if params.MediaCodec() == nil {
		return invalid("no media codec in rtpParameters.codecs")
	}

	for _, codec := range params.Codecs {
		if !codec.IsRtx() {
			continue
		}
		apt, ok := intParameter(codec.Parameters, "apt")
		if !ok {
			return invalid("missing apt in rtx codec")
		}
		if _, ok := payloadTypes[uint8(apt)]; !ok {
			return invalid("rtx codec apt %d does not match any codec", apt)
		}
	}

	for _, ext := range params.HeaderExtensions {
		if ext == nil || ext.URI == "" {
			return invalid("missing headerExtension.uri")
		}
		if ext.ID == 0 {
			return invalid("missing headerExtension.id")
		}
	}

	if len(params.Encodings) > 1 {
		for _, enc := range params.Encodings {
			if enc == nil || (enc.Ssrc == 0 && enc.Rid == "") {
				return invalid("encodings must carry ssrc or rid")
			}
		}
	}
	for _, enc := range params.Encodings {
		if enc == nil || enc.CodecPayloadType == nil {
			continue
		}
		if _, ok := payloadTypes[*enc.CodecPayloadType]; !ok {
			return invalid("encoding.codecPayloadType %d does not match any codec", *enc.CodecPayloadType)
		}
	}

	if params.Rtcp == nil {
		params.Rtcp = &RtcpParameters{}
	}
	if params.Rtcp.ReducedSize == nil {
		reduced := true
		params.Rtcp.ReducedSize = &reduced
	}
	return nil
}

func validateRtpCodecParameters(codec *RtpCodecParameters) error {
	if codec == nil {
		return invalid("null codec")
	}
	mimeType := strings.ToLower(codec.MimeType)
	if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/") {
		return invalid("invalid codec.mimeType %q", codec.MimeType)
	}
	if codec.ClockRate == 0 {
		return invalid("missing codec.clockRate")
	}
	if codec.Kind() == MediaKindAudio && codec.Channels == 0 {
		codec.Channels = 1
	}
	for _, fb := range codec.RtcpFeedback {
		if fb.Type == "" {
			return invalid("missing rtcpFeedback.type")
		}
	}
	return nil
}

// ValidateDtlsParameters checks the DTLS parameters a client connects with.
func ValidateDtlsParameters(params *DtlsParameters) error {
	if params == nil {
		return invalid("missing dtlsParameters")
	}
	switch params.Role {
	case "":
		params.Role = DtlsRoleAuto
	case DtlsRoleAuto, DtlsRoleClient, DtlsRoleServer:
	default:
		return invalid("invalid dtlsParameters.role %q", params.Role)
	}
	if len(params.Fingerprints) == 0 {
		return invalid("empty dtlsParameters.fingerprints")
	}
	for _, fp := range params.Fingerprints {
		if _, err := fingerprint.HashFromString(strings.ToLower(fp.Algorithm)); err != nil {
			return invalid("unsupported fingerprint algorithm %q", fp.Algorithm)
		}
		if fp.Value == "" {
			return invalid("missing fingerprint value")
		}
	}
	return nil
}

// ValidateSctpCapabilities checks the SCTP capabilities a client declares.
func ValidateSctpCapabilities(caps *SctpCapabilities) error {
	if caps == nil {
		return invalid("missing sctpCapabilities")
	}
	if caps.NumStreams.OS == 0 {
		return invalid("missing numStreams.OS")
	}
	if caps.NumStreams.MIS == 0 {
		return invalid("missing numStreams.MIS")
	}
	return nil
}

// intParameter reads a numeric codec parameter. JSON numbers decode as
// float64, configuration values may arrive as ints or strings.
func intParameter(params map[string]interface{}, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint32:
		return int(n), true
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
