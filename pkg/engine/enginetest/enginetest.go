// Package enginetest provides an in-memory engine.Worker for tests of the
// signaling layer.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lucsky/cuid"
	"github.com/pion/ion-ortc/pkg/engine"
	"github.com/pion/ion-ortc/pkg/ortc"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected engine failure")

// Worker is a fake worker. Hooks may be set before use.
type Worker struct {
	// FailRouter makes CreateRouter fail.
	FailRouter bool

	// BeforeTransport runs at the start of every CreateWebRtcTransport. A
	// non-nil error fails the call.
	BeforeTransport func(ctx context.Context) error

	died     chan error
	dieOnce  sync.Once
	ssrc     uint32
	mu       sync.Mutex
	closed   bool
	objects  map[string]closer
	routers  int
	created  int
	released int
}

type closer interface {
	kind() string
}

// NewWorker returns a live fake worker.
func NewWorker() *Worker {
	return &Worker{
		died:    make(chan error, 1),
		objects: make(map[string]closer),
	}
}

// Kill simulates an unexpected worker exit.
func (w *Worker) Kill(err error) {
	w.dieOnce.Do(func() { w.died <- err })
}

func (w *Worker) Died() <-chan error {
	return w.died
}

func (w *Worker) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *Worker) CreateRouter(ctx context.Context, codecs []*ortc.RtpCodecCapability) (engine.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, engine.ErrClosed
	}
	if w.FailRouter {
		return nil, ErrInjected
	}
	w.routers++
	return &Router{id: cuid.New(), worker: w}, nil
}

// Live returns the number of live transports, producers and consumers.
func (w *Worker) Live() (transports, producers, consumers int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.objects {
		switch o.kind() {
		case "transport":
			transports++
		case "producer":
			producers++
		case "consumer":
			consumers++
		}
	}
	return
}

// Released returns how many objects were closed.
func (w *Worker) Released() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *Worker) add(id string, o closer) {
	w.mu.Lock()
	w.objects[id] = o
	w.created++
	w.mu.Unlock()
}

// release reports whether id was live.
func (w *Worker) release(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.objects[id]; !ok {
		return false
	}
	delete(w.objects, id)
	w.released++
	return true
}

func (w *Worker) live(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.objects[id]
	return ok
}

// Router is a fake router.
type Router struct {
	id     string
	worker *Worker
}

func (r *Router) ID() string {
	return r.id
}

func (r *Router) CreateWebRtcTransport(ctx context.Context, opts engine.WebRtcTransportOptions) (engine.Transport, error) {
	if r.worker.BeforeTransport != nil {
		if err := r.worker.BeforeTransport(ctx); err != nil {
			return nil, err
		}
	}
	if !opts.EnableUDP && !opts.EnableTCP {
		return nil, engine.ErrNoNetwork
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := &Transport{id: cuid.New(), worker: r.worker, opts: opts}
	if opts.EnableUDP {
		t.candidates = append(t.candidates, ortc.IceCandidate{
			Foundation: "udpcandidate", Priority: 1076302079, IP: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host",
		})
	}
	if opts.EnableTCP {
		tcp := ortc.IceCandidate{
			Foundation: "tcpcandidate", Priority: 1076276479, IP: "127.0.0.1", Protocol: "tcp", Port: 40001, Type: "host", TCPType: "passive",
		}
		if opts.PreferTCP {
			t.candidates = append([]ortc.IceCandidate{tcp}, t.candidates...)
		} else {
			t.candidates = append(t.candidates, tcp)
		}
	}
	r.worker.add(t.id, t)
	return t, nil
}

func (r *Router) Close() error {
	return nil
}

// Transport is a fake transport.
type Transport struct {
	id         string
	worker     *Worker
	opts       engine.WebRtcTransportOptions
	candidates []ortc.IceCandidate

	mu     sync.Mutex
	remote *ortc.DtlsParameters
}

func (t *Transport) kind() string { return "transport" }

func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) IceParameters() ortc.IceParameters {
	return ortc.IceParameters{UsernameFragment: "ufrag-" + t.id, Password: "pwd-" + t.id, IceLite: true}
}

func (t *Transport) IceCandidates() []ortc.IceCandidate {
	return append([]ortc.IceCandidate(nil), t.candidates...)
}

func (t *Transport) DtlsParameters() ortc.DtlsParameters {
	return ortc.DtlsParameters{
		Role:         ortc.DtlsRoleAuto,
		Fingerprints: []ortc.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB:CC"}},
	}
}

func (t *Transport) SctpParameters() *ortc.SctpParameters {
	if !t.opts.EnableSCTP {
		return nil
	}
	return &ortc.SctpParameters{
		Port:           ortc.SctpPort,
		OS:             t.opts.NumSctpStreams.OS,
		MIS:            t.opts.NumSctpStreams.MIS,
		MaxMessageSize: 262144,
	}
}

// Remote returns the DTLS parameters recorded by Connect.
func (t *Transport) Remote() *ortc.DtlsParameters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *Transport) Connect(ctx context.Context, remote ortc.DtlsParameters) error {
	if !t.worker.live(t.id) {
		return engine.ErrClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote != nil {
		return fmt.Errorf("transport %s already connected", t.id)
	}
	t.remote = &remote
	return nil
}

func (t *Transport) Produce(ctx context.Context, opts engine.ProducerOptions) (engine.Producer, error) {
	if !t.worker.live(t.id) {
		return nil, engine.ErrClosed
	}
	p := &Producer{id: cuid.New(), worker: t.worker, opts: opts}
	t.worker.add(p.id, p)
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, opts engine.ConsumerOptions) (engine.Consumer, error) {
	if !t.worker.live(t.id) {
		return nil, engine.ErrClosed
	}
	if !t.worker.live(opts.Producer.ID()) {
		return nil, engine.ErrClosed
	}
	ssrc := atomic.AddUint32(&t.worker.ssrc, 1)
	c := &Consumer{
		id:       cuid.New(),
		worker:   t.worker,
		producer: opts.Producer,
		params:   engine.ConsumerRtpParameters(opts.Producer.RtpParameters(), opts.Codec, ssrc),
	}
	t.worker.add(c.id, c)
	return c, nil
}

func (t *Transport) Close() error {
	t.worker.release(t.id)
	return nil
}

// Producer is a fake producer.
type Producer struct {
	id     string
	worker *Worker
	opts   engine.ProducerOptions
}

func (p *Producer) kind() string { return "producer" }

func (p *Producer) ID() string {
	return p.id
}

func (p *Producer) Kind() ortc.MediaKind {
	return p.opts.Kind
}

func (p *Producer) RtpParameters() ortc.RtpParameters {
	return p.opts.RtpParameters
}

func (p *Producer) Close() error {
	p.worker.release(p.id)
	return nil
}

// Consumer is a fake consumer.
type Consumer struct {
	id       string
	worker   *Worker
	producer engine.Producer
	params   ortc.RtpParameters
}

func (c *Consumer) kind() string { return "consumer" }

func (c *Consumer) ID() string {
	return c.id
}

func (c *Consumer) ProducerID() string {
	return c.producer.ID()
}

func (c *Consumer) Kind() ortc.MediaKind {
	return c.producer.Kind()
}

func (c *Consumer) RtpParameters() ortc.RtpParameters {
	return c.params
}

func (c *Consumer) Close() error {
	c.worker.release(c.id)
	return nil
}
