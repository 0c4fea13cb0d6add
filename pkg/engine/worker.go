package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"

	"github.com/lucsky/cuid"
	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/transport/vnet"
	"github.com/pion/turn/v2"
	"github.com/pion/webrtc/v3"
)

// WorkerOption configures a pion worker.
type WorkerOption func(w *PionWorker)

// WithVNet runs every transport of the worker on a virtual network.
func WithVNet(n *vnet.Net) WorkerOption {
	return func(w *PionWorker) {
		w.vnet = n
	}
}

// WithTurnAuth replaces the static TURN credentials of the config.
func WithTurnAuth(auth TurnAuth) WorkerOption {
	return func(w *PionWorker) {
		w.turnAuth = auth
	}
}

// PionWorker is a Worker running in process on top of pion/webrtc.
type PionWorker struct {
	vnet     *vnet.Net
	turnAuth TurnAuth

	settings *settings
	cert     webrtc.Certificate
	turn     *turn.Server

	died    chan error
	dieOnce sync.Once

	mu      sync.Mutex
	closed  bool
	routers map[string]*pionRouter
}

// NewWorker starts a pion worker from c.
func NewWorker(c Config, opts ...WorkerOption) (*PionWorker, error) {
	w := &PionWorker{
		died:    make(chan error, 1),
		routers: make(map[string]*pionRouter),
	}
	for _, o := range opts {
		o(w)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, err
	}
	w.cert = *cert

	if w.settings, err = newSettings(c.WebRTC, w.die); err != nil {
		return nil, err
	}
	if w.vnet != nil {
		w.settings.engine.SetVNet(w.vnet)
	}

	if c.Turn.Enabled {
		if w.turn, err = initTurnServer(c.Turn, w.turnAuth); err != nil {
			w.settings.close()
			return nil, err
		}
		Logger.V(0).Info("TURN server started", "address", c.Turn.Address, "realm", c.Turn.Realm)
	}

	return w, nil
}

func (w *PionWorker) die(err error) {
	w.dieOnce.Do(func() {
		Logger.Error(err, "worker died")
		w.died <- err
	})
}

// Died implements Worker.
func (w *PionWorker) Died() <-chan error {
	return w.died
}

// CreateRouter implements Worker.
func (w *PionWorker) CreateRouter(ctx context.Context, codecs []*ortc.RtpCodecCapability) (Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := newMediaEngine(codecs)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	r := &pionRouter{
		id:         cuid.New(),
		worker:     w,
		media:      m,
		transports: make(map[string]*pionTransport),
	}
	w.routers[r.id] = r
	Logger.V(1).Info("router created", "router_id", r.id, "codecs", len(codecs))
	return r, nil
}

func (w *PionWorker) removeRouter(id string) {
	w.mu.Lock()
	delete(w.routers, id)
	w.mu.Unlock()
}

// Close releases every router and the sockets of the worker. Closing is not
// reported through Died.
func (w *PionWorker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	routers := make([]*pionRouter, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()

	for _, r := range routers {
		if err := r.Close(); err != nil {
			Logger.Error(err, "closing router", "router_id", r.id)
		}
	}
	w.settings.close()

	if w.turn != nil {
		return w.turn.Close()
	}
	return nil
}
