package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/webrtc/v3"
)

type pionRouter struct {
	id     string
	worker *PionWorker
	media  *webrtc.MediaEngine

	mu         sync.Mutex
	closed     bool
	transports map[string]*pionTransport
}

func newMediaEngine(codecs []*ortc.RtpCodecCapability) (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range codecs {
		codecType := webrtc.RTPCodecTypeAudio
		if c.Kind == ortc.MediaKindVideo {
			codecType = webrtc.RTPCodecTypeVideo
		}
		err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: codecCapability(c.MimeType, c.ClockRate, c.Channels, c.Parameters, c.RtcpFeedback),
			PayloadType:        webrtc.PayloadType(c.PreferredPayloadType),
		}, codecType)
		if err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c, err)
		}
	}
	return m, nil
}

func codecCapability(mimeType string, clockRate uint32, channels uint8, params map[string]interface{}, fb []ortc.RtcpFeedback) webrtc.RTPCodecCapability {
	c := webrtc.RTPCodecCapability{
		MimeType:    mimeType,
		ClockRate:   clockRate,
		Channels:    uint16(channels),
		SDPFmtpLine: fmtpLine(params),
	}
	for _, f := range fb {
		c.RTCPFeedback = append(c.RTCPFeedback, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return c
}

// fmtpLine renders codec parameters as an a=fmtp value, keys sorted.
func fmtpLine(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

func (r *pionRouter) ID() string {
	return r.id
}

func (r *pionRouter) CreateWebRtcTransport(ctx context.Context, opts WebRtcTransportOptions) (Transport, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	se, err := r.worker.settings.forTransport(opts)
	if err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(r.media), webrtc.WithSettingEngine(se))

	t, err := newPionTransport(ctx, r, api, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = t.close()
		return nil, ErrClosed
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *pionRouter) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *pionRouter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := r.transports
	r.transports = make(map[string]*pionTransport)
	r.mu.Unlock()

	for _, t := range transports {
		if err := t.close(); err != nil {
			Logger.Error(err, "closing transport", "transport_id", t.id)
		}
	}
	r.worker.removeRouter(r.id)
	Logger.V(1).Info("router closed", "router_id", r.id)
	return nil
}
