package sfu

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/go-logr/logr"
	"github.com/pion/ion-ortc/pkg/engine"
	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/ion-ortc/pkg/stats"
)

// Logger is used by the sfu package, cmd sets it.
var Logger logr.Logger = logr.Discard()

// ContextState is the lifecycle state of a MediaContext.
type ContextState int32

const (
	ContextInitializing ContextState = iota
	ContextReady
	ContextDead
)

func (s ContextState) String() string {
	switch s {
	case ContextInitializing:
		return "initializing"
	case ContextReady:
		return "ready"
	case ContextDead:
		return "dead"
	}
	return fmt.Sprintf("ContextState(%d)", int32(s))
}

// TransportOptions are the client options of createWebRtcTransport.
type TransportOptions struct {
	EnableUDP        bool
	EnableTCP        bool
	PreferUDP        bool
	PreferTCP        bool
	EnableSCTP       bool
	SctpCapabilities *ortc.SctpCapabilities
	AppData          map[string]interface{}
}

// MediaContext is the routing domain shared by every session: the engine
// router, its capability registry and the producers published on it.
type MediaContext struct {
	worker engine.Worker
	cfg    RouterConfig

	state     int32
	router    engine.Router
	registry  *ortc.Registry
	producers *producerRegistry
	pool      *workerpool.WorkerPool

	// poolMu orders submissions against Close stopping the pool
	poolMu sync.RWMutex

	mu      sync.Mutex
	onFatal func(error)
	stop    chan struct{}
	once    sync.Once
}

// NewMediaContext returns an Initializing context for worker.
func NewMediaContext(worker engine.Worker, cfg RouterConfig) *MediaContext {
	return &MediaContext{
		worker:    worker,
		cfg:       cfg,
		producers: newProducerRegistry(),
		stop:      make(chan struct{}),
	}
}

// OnFatal sets the handler called once if the context dies.
func (m *MediaContext) OnFatal(f func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFatal = f
}

// Initialize creates the router and moves the context to Ready. Every error
// it returns is a *FatalError.
func (m *MediaContext) Initialize(ctx context.Context) error {
	if m.State() != ContextInitializing {
		return &FatalError{Err: fmt.Errorf("initialize in state %s", m.State())}
	}

	codecs, err := m.cfg.Codecs()
	if err != nil {
		return m.fail(err)
	}
	registry, err := ortc.NewRegistry(codecs)
	if err != nil {
		return m.fail(err)
	}

	start := time.Now()
	router, err := m.worker.CreateRouter(ctx, registry.Capabilities().Codecs)
	stats.ObserveEngineCall("createRouter", start)
	if err != nil {
		return m.fail(fmt.Errorf("create router: %w", err))
	}

	m.registry = registry
	m.router = router
	m.pool = workerpool.New(m.cfg.maxConcurrentCreates())
	atomic.StoreInt32(&m.state, int32(ContextReady))
	stats.SetReady(true)
	go m.watch()

	Logger.V(0).Info("media context ready", "router_id", router.ID(), "codecs", len(codecs))
	return nil
}

func (m *MediaContext) fail(err error) error {
	atomic.StoreInt32(&m.state, int32(ContextDead))
	stats.SetReady(false)
	return &FatalError{Err: err}
}

func (m *MediaContext) watch() {
	select {
	case err := <-m.worker.Died():
		fatal := m.fail(err)
		Logger.Error(err, "media worker died")

		m.mu.Lock()
		f := m.onFatal
		m.mu.Unlock()
		if f != nil {
			f(fatal)
		}
	case <-m.stop:
	}
}

// State returns the current state.
func (m *MediaContext) State() ContextState {
	return ContextState(atomic.LoadInt32(&m.state))
}

// Ready reports whether the context serves requests.
func (m *MediaContext) Ready() bool {
	return m.State() == ContextReady
}

// GetCapabilities returns the router RTP capabilities.
func (m *MediaContext) GetCapabilities() (ortc.RtpCapabilities, error) {
	if !m.Ready() {
		return ortc.RtpCapabilities{}, ErrMediaContextNotReady
	}
	return m.registry.Capabilities(), nil
}

// CreateTransport creates an engine transport for sessionID.
func (m *MediaContext) CreateTransport(ctx context.Context, sessionID string, opts TransportOptions) (engine.Transport, error) {
	if !opts.EnableUDP && !opts.EnableTCP {
		return nil, invalidRequest("neither enableUdp nor enableTcp")
	}
	streams := ortc.DefaultNumSctpStreams
	if opts.SctpCapabilities != nil {
		if err := ortc.ValidateSctpCapabilities(opts.SctpCapabilities); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		streams = opts.SctpCapabilities.NumStreams
	}

	o, err := m.run(ctx, "createWebRtcTransport", func(ctx context.Context) (io.Closer, error) {
		return m.router.CreateWebRtcTransport(ctx, engine.WebRtcTransportOptions{
			EnableUDP:      opts.EnableUDP,
			EnableTCP:      opts.EnableTCP,
			PreferUDP:      opts.PreferUDP,
			PreferTCP:      opts.PreferTCP,
			EnableSCTP:     opts.EnableSCTP,
			NumSctpStreams: streams,
			AppData:        opts.AppData,
		})
	})
	if err != nil {
		return nil, err
	}
	t := o.(engine.Transport)
	Logger.V(1).Info("transport created", "session_id", sessionID, "transport_id", t.ID())
	return t, nil
}

func (m *MediaContext) produce(ctx context.Context, t engine.Transport, opts engine.ProducerOptions) (engine.Producer, error) {
	o, err := m.run(ctx, "produce", func(ctx context.Context) (io.Closer, error) {
		return t.Produce(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return o.(engine.Producer), nil
}

func (m *MediaContext) consume(ctx context.Context, t engine.Transport, opts engine.ConsumerOptions) (engine.Consumer, error) {
	o, err := m.run(ctx, "consume", func(ctx context.Context) (io.Closer, error) {
		return t.Consume(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return o.(engine.Consumer), nil
}

type runResult struct {
	obj io.Closer
	err error
}

// run executes an engine call on the pool. If ctx ends first the caller gets
// the context error and whatever the call creates late is closed.
func (m *MediaContext) run(ctx context.Context, call string, fn func(ctx context.Context) (io.Closer, error)) (io.Closer, error) {
	ch := make(chan runResult, 1)
	m.poolMu.RLock()
	if !m.Ready() {
		m.poolMu.RUnlock()
		return nil, ErrMediaContextNotReady
	}
	m.pool.Submit(func() {
		if err := ctx.Err(); err != nil {
			ch <- runResult{err: err}
			return
		}
		start := time.Now()
		obj, err := fn(ctx)
		stats.ObserveEngineCall(call, start)
		ch <- runResult{obj: obj, err: err}
	})
	m.poolMu.RUnlock()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if ctx.Err() != nil {
			closeQuietly(r.obj)
			return nil, ctx.Err()
		}
		return r.obj, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				closeQuietly(r.obj)
			}
		}()
		return nil, ctx.Err()
	}
}

func closeQuietly(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		Logger.Error(err, "closing engine object")
	}
}

// Close stops the context. The worker is owned by the caller.
func (m *MediaContext) Close() {
	m.once.Do(func() {
		close(m.stop)
		m.poolMu.Lock()
		atomic.StoreInt32(&m.state, int32(ContextDead))
		m.poolMu.Unlock()
		stats.SetReady(false)

		if m.pool != nil {
			m.pool.StopWait()
		}
		if m.router != nil {
			if err := m.router.Close(); err != nil {
				Logger.Error(err, "closing router")
			}
		}
	})
}
