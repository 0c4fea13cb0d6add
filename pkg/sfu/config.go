package sfu

import (
	"fmt"

	"github.com/pion/ion-ortc/pkg/engine"
	"github.com/pion/ion-ortc/pkg/logger"
	"github.com/pion/ion-ortc/pkg/ortc"
)

const defaultMaxConcurrentCreates = 16

// CodecConfig is a media codec of the router as found in the config file.
type CodecConfig struct {
	Kind                 string                 `mapstructure:"kind"`
	MimeType             string                 `mapstructure:"mimetype"`
	ClockRate            uint32                 `mapstructure:"clockrate"`
	Channels             uint8                  `mapstructure:"channels"`
	PreferredPayloadType uint8                  `mapstructure:"preferredpayloadtype"`
	Parameters           map[string]interface{} `mapstructure:"parameters"`
	RtcpFeedback         []string               `mapstructure:"rtcpfeedback"`
}

// RouterConfig defines the routing domain of the media context.
type RouterConfig struct {
	MaxConcurrentCreates int           `mapstructure:"maxconcurrentcreates"`
	MediaCodecs          []CodecConfig `mapstructure:"mediacodecs"`
}

// Config for the signaling server
type Config struct {
	SFU struct {
		Ballast int64 `mapstructure:"ballast"`
	} `mapstructure:"sfu"`
	Router RouterConfig        `mapstructure:"router"`
	WebRTC engine.WebRTCConfig `mapstructure:"webrtc"`
	Turn   engine.TurnConfig   `mapstructure:"turn"`
	Log    logger.GlobalConfig `mapstructure:"log"`
}

// Engine returns the configuration of the pion worker.
func (c Config) Engine() engine.Config {
	return engine.Config{WebRTC: c.WebRTC, Turn: c.Turn}
}

// DefaultMediaCodecs are used when the config lists none.
func DefaultMediaCodecs() []CodecConfig {
	return []CodecConfig{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000, RtcpFeedback: []string{"nack", "nack pli", "ccm fir", "goog-remb"}},
	}
}

// Codecs converts the configured media codecs, falling back to
// DefaultMediaCodecs.
func (c RouterConfig) Codecs() ([]*ortc.RtpCodecCapability, error) {
	configured := c.MediaCodecs
	if len(configured) == 0 {
		configured = DefaultMediaCodecs()
	}

	codecs := make([]*ortc.RtpCodecCapability, 0, len(configured))
	for _, cc := range configured {
		kind := ortc.MediaKind(cc.Kind)
		if cc.Kind != "" && !kind.Valid() {
			return nil, fmt.Errorf("codec %s: invalid kind %q", cc.MimeType, cc.Kind)
		}
		codec := &ortc.RtpCodecCapability{
			Kind:                 kind,
			MimeType:             cc.MimeType,
			PreferredPayloadType: cc.PreferredPayloadType,
			ClockRate:            cc.ClockRate,
			Channels:             cc.Channels,
			Parameters:           cc.Parameters,
		}
		for _, fb := range cc.RtcpFeedback {
			codec.RtcpFeedback = append(codec.RtcpFeedback, parseFeedback(fb))
		}
		codecs = append(codecs, codec)
	}
	return codecs, nil
}

func (c RouterConfig) maxConcurrentCreates() int {
	if c.MaxConcurrentCreates <= 0 {
		return defaultMaxConcurrentCreates
	}
	return c.MaxConcurrentCreates
}

// parseFeedback splits "nack pli" into type and parameter.
func parseFeedback(s string) ortc.RtcpFeedback {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return ortc.RtcpFeedback{Type: s[:i], Parameter: s[i+1:]}
		}
	}
	return ortc.RtcpFeedback{Type: s}
}
