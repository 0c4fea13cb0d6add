package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lucsky/cuid"
	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/webrtc/v3"
)

var (
	errAlreadyConnected = errors.New("transport already connected")
	errForeignProducer  = errors.New("producer does not belong to this worker")
	errNoMediaCodec     = errors.New("no media codec in rtp parameters")
)

type pionTransport struct {
	id     string
	router *pionRouter
	api    *webrtc.API

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	sctp     *webrtc.SCTPTransport

	iceParameters  ortc.IceParameters
	iceCandidates  []ortc.IceCandidate
	dtlsParameters ortc.DtlsParameters
	sctpParameters *ortc.SctpParameters

	mu        sync.Mutex
	closed    bool
	remote    *ortc.DtlsParameters
	producers map[string]*pionProducer
	consumers map[string]*pionConsumer
}

func newPionTransport(ctx context.Context, r *pionRouter, api *webrtc.API, opts WebRtcTransportOptions) (*pionTransport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: r.worker.settings.iceServers})
	if err != nil {
		return nil, err
	}

	t := &pionTransport{
		id:        cuid.New(),
		router:    r,
		api:       api,
		gatherer:  gatherer,
		producers: make(map[string]*pionProducer),
		consumers: make(map[string]*pionConsumer),
	}

	if err := t.gather(ctx, r.worker.settings.gatherTimeout); err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	t.ice = api.NewICETransport(gatherer)
	if t.dtls, err = api.NewDTLSTransport(t.ice, []webrtc.Certificate{r.worker.cert}); err != nil {
		_ = t.ice.Stop()
		return nil, err
	}
	local, err := t.dtls.GetLocalParameters()
	if err != nil {
		_ = t.ice.Stop()
		return nil, err
	}
	t.dtlsParameters = ortc.DtlsParameters{Role: ortc.DtlsRoleAuto}
	for _, f := range local.Fingerprints {
		t.dtlsParameters.Fingerprints = append(t.dtlsParameters.Fingerprints, ortc.DtlsFingerprint{
			Algorithm: f.Algorithm,
			Value:     f.Value,
		})
	}

	if opts.EnableSCTP {
		t.sctp = api.NewSCTPTransport(t.dtls)
		streams := opts.NumSctpStreams
		if streams.OS == 0 || streams.MIS == 0 {
			streams = ortc.DefaultNumSctpStreams
		}
		t.sctpParameters = &ortc.SctpParameters{
			Port:           ortc.SctpPort,
			OS:             streams.OS,
			MIS:            streams.MIS,
			MaxMessageSize: t.sctp.GetCapabilities().MaxMessageSize,
		}
	}

	sortCandidates(t.iceCandidates, opts)
	Logger.V(1).Info("transport created", "transport_id", t.id, "candidates", len(t.iceCandidates), "sctp", opts.EnableSCTP)
	return t, nil
}

// gather collects local candidates until gathering completes, the timeout
// expires or ctx ends. A timeout keeps what was gathered so far.
func (t *pionTransport) gather(ctx context.Context, timeout time.Duration) error {
	done := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})

	if err := t.gatherer.Gather(); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		Logger.V(0).Info("ice gathering timed out", "transport_id", t.id, "timeout", timeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}

	params, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return err
	}
	t.iceParameters = ortc.IceParameters{
		UsernameFragment: params.UsernameFragment,
		Password:         params.Password,
		IceLite:          params.ICELite,
	}

	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return err
	}
	for _, c := range candidates {
		t.iceCandidates = append(t.iceCandidates, ortc.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return nil
}

// sortCandidates puts the preferred protocol first, keeping priority order
// otherwise.
func sortCandidates(c []ortc.IceCandidate, opts WebRtcTransportOptions) {
	rank := func(protocol string) int {
		switch {
		case opts.PreferUDP && protocol == "udp":
			return 0
		case opts.PreferTCP && protocol == "tcp":
			return 0
		}
		return 1
	}
	sort.SliceStable(c, func(i, j int) bool {
		ri, rj := rank(c[i].Protocol), rank(c[j].Protocol)
		if ri != rj {
			return ri < rj
		}
		return c[i].Priority > c[j].Priority
	})
}

func (t *pionTransport) ID() string {
	return t.id
}

func (t *pionTransport) IceParameters() ortc.IceParameters {
	return t.iceParameters
}

func (t *pionTransport) IceCandidates() []ortc.IceCandidate {
	return append([]ortc.IceCandidate(nil), t.iceCandidates...)
}

func (t *pionTransport) DtlsParameters() ortc.DtlsParameters {
	return t.dtlsParameters
}

func (t *pionTransport) SctpParameters() *ortc.SctpParameters {
	if t.sctpParameters == nil {
		return nil
	}
	p := *t.sctpParameters
	return &p
}

func (t *pionTransport) Connect(ctx context.Context, remote ortc.DtlsParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ortc.ValidateDtlsParameters(&remote); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.remote != nil {
		return errAlreadyConnected
	}
	t.remote = &remote
	Logger.V(1).Info("transport connected", "transport_id", t.id, "role", string(remote.Role))
	return nil
}

func (t *pionTransport) Produce(ctx context.Context, opts ProducerOptions) (Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec := opts.RtpParameters.MediaCodec()
	if codec == nil {
		return nil, errNoMediaCodec
	}

	id := cuid.New()
	track, err := webrtc.NewTrackLocalStaticRTP(
		codecCapability(codec.MimeType, codec.ClockRate, codec.Channels, codec.Parameters, codec.RtcpFeedback),
		id, t.id)
	if err != nil {
		return nil, err
	}

	p := &pionProducer{
		id:        id,
		transport: t,
		kind:      opts.Kind,
		params:    opts.RtpParameters,
		track:     track,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	t.producers[p.id] = p
	return p, nil
}

func (t *pionTransport) Consume(ctx context.Context, opts ConsumerOptions) (Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	producer, ok := opts.Producer.(*pionProducer)
	if !ok || producer.transport.router.worker != t.router.worker {
		return nil, errForeignProducer
	}
	if producer.isClosed() {
		return nil, ErrClosed
	}

	sender, err := t.api.NewRTPSender(producer.track, t.dtls)
	if err != nil {
		return nil, err
	}
	var ssrc uint32
	if encodings := sender.GetParameters().Encodings; len(encodings) > 0 {
		ssrc = uint32(encodings[0].SSRC)
	}

	c := &pionConsumer{
		id:         cuid.New(),
		transport:  t,
		producerID: producer.id,
		kind:       producer.kind,
		params:     ConsumerRtpParameters(producer.params, opts.Codec, ssrc),
		sender:     sender,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = sender.Stop()
		return nil, ErrClosed
	}
	t.consumers[c.id] = c
	return c, nil
}

func (t *pionTransport) removeProducer(id string) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *pionTransport) removeConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

func (t *pionTransport) Close() error {
	err := t.close()
	t.router.removeTransport(t.id)
	return err
}

// close stops the transport and everything created on it.
func (t *pionTransport) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := t.consumers
	producers := t.producers
	t.consumers = make(map[string]*pionConsumer)
	t.producers = make(map[string]*pionProducer)
	t.mu.Unlock()

	for _, c := range consumers {
		c.stop()
	}
	for _, p := range producers {
		p.stop()
	}

	if t.sctp != nil {
		if err := t.sctp.Stop(); err != nil {
			Logger.Error(err, "stopping sctp", "transport_id", t.id)
		}
	}
	if err := t.dtls.Stop(); err != nil {
		Logger.Error(err, "stopping dtls", "transport_id", t.id)
	}
	err := t.ice.Stop()
	Logger.V(1).Info("transport closed", "transport_id", t.id)
	return err
}
