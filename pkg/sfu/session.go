package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/ion-ortc/pkg/engine"
	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/ion-ortc/pkg/stats"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// TransportInfo is what a client needs to connect to a transport.
type TransportInfo struct {
	ID             string               `json:"id"`
	IceParameters  ortc.IceParameters   `json:"iceParameters"`
	IceCandidates  []ortc.IceCandidate  `json:"iceCandidates"`
	DtlsParameters ortc.DtlsParameters  `json:"dtlsParameters"`
	SctpParameters *ortc.SctpParameters `json:"sctpParameters,omitempty"`
}

// ProduceRequest starts sending media on a transport.
type ProduceRequest struct {
	TransportID   string
	Kind          ortc.MediaKind
	RtpParameters ortc.RtpParameters
	AppData       map[string]interface{}
}

// ConsumeRequest starts receiving a producer on a transport. Exactly one of
// RtpCapabilities and SDP describes what the client can receive.
type ConsumeRequest struct {
	TransportID     string
	ProducerID      string
	RtpCapabilities *ortc.RtpCapabilities
	SDP             string
}

// ConsumerInfo describes a created consumer.
type ConsumerInfo struct {
	ID            string             `json:"consumerId"`
	ProducerID    string             `json:"producerId"`
	Kind          ortc.MediaKind     `json:"kind"`
	RtpParameters ortc.RtpParameters `json:"rtpParameters"`
}

type sessionTransport struct {
	transport engine.Transport
	producers map[string]engine.Producer
	consumers map[string]engine.Consumer
}

// Session is the signaling state of one client connection. Requests of a
// session are handled one at a time.
type Session struct {
	id        string
	createdAt time.Time
	mc        *MediaContext
	notifier  *notificationQueue
	// broadcast reaches every other active session
	broadcast func(from, method string, params interface{})

	state     int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu         sync.Mutex
	transports map[string]*sessionTransport
	// producer and consumer id -> owning transport id
	producers map[string]string
	consumers map[string]string
}

func newSession(id string, mc *MediaContext, n Notifier) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		createdAt:  time.Now(),
		mc:         mc,
		notifier:   newNotificationQueue(n),
		ctx:        ctx,
		cancel:     cancel,
		transports: make(map[string]*sessionTransport),
		producers:  make(map[string]string),
		consumers:  make(map[string]string),
	}
}

// ID returns the connection id of the session.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the connection was accepted.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current state.
func (s *Session) State() SessionState {
	return SessionState(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(state SessionState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Counts returns the number of transports, producers and consumers.
func (s *Session) Counts() (transports, producers, consumers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transports), len(s.producers), len(s.consumers)
}

// acquire serializes a request on the session. The returned context ends
// when the request context does or when the session starts closing.
func (s *Session) acquire(ctx context.Context) (context.Context, func(), error) {
	if s.State() >= SessionClosing {
		return nil, nil, ErrSessionClosed
	}
	s.mu.Lock()
	if s.State() >= SessionClosing {
		s.mu.Unlock()
		return nil, nil, ErrSessionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		cancel()
		s.mu.Unlock()
	}, nil
}

// engineError maps failures of engine calls.
func (s *Session) engineError(err error) error {
	switch {
	case s.State() >= SessionClosing:
		return ErrSessionClosed
	case errors.Is(err, engine.ErrNoNetwork):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	case errors.Is(err, ortc.ErrInvalidParameters):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return err
}

// GetRouterCapabilities returns the RTP capabilities of the router.
func (s *Session) GetRouterCapabilities(ctx context.Context) (ortc.RtpCapabilities, error) {
	if s.State() >= SessionClosing {
		return ortc.RtpCapabilities{}, ErrSessionClosed
	}
	return s.mc.GetCapabilities()
}

// CreateWebRtcTransport creates a transport owned by the session.
func (s *Session) CreateWebRtcTransport(ctx context.Context, opts TransportOptions) (*TransportInfo, error) {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := s.mc.CreateTransport(ctx, s.id, opts)
	if err != nil {
		return nil, s.engineError(err)
	}
	s.transports[t.ID()] = &sessionTransport{
		transport: t,
		producers: make(map[string]engine.Producer),
		consumers: make(map[string]engine.Consumer),
	}
	stats.Transports.Inc()

	return &TransportInfo{
		ID:             t.ID(),
		IceParameters:  t.IceParameters(),
		IceCandidates:  t.IceCandidates(),
		DtlsParameters: t.DtlsParameters(),
		SctpParameters: t.SctpParameters(),
	}, nil
}

// ConnectWebRtcTransport hands the client DTLS parameters to a transport.
func (s *Session) ConnectWebRtcTransport(ctx context.Context, transportID string, remote ortc.DtlsParameters) error {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	st, ok := s.transports[transportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransportNotFound, transportID)
	}
	if err := ortc.ValidateDtlsParameters(&remote); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := st.transport.Connect(ctx, remote); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrClosed) {
			return s.engineError(err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Produce creates a producer on one of the session transports and makes it
// available to every session.
func (s *Session) Produce(ctx context.Context, req ProduceRequest) (string, error) {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}

	st, ok := s.transports[req.TransportID]
	if !ok {
		release()
		return "", fmt.Errorf("%w: %s", ErrTransportNotFound, req.TransportID)
	}
	if !req.Kind.Valid() {
		release()
		return "", invalidRequest("invalid kind %q", req.Kind)
	}
	params := req.RtpParameters
	if err := ortc.ValidateRtpParameters(&params); err != nil {
		release()
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	codec := params.MediaCodec()
	if codec.Kind() != req.Kind {
		release()
		return "", invalidRequest("codec %s does not match kind %s", codec.MimeType, req.Kind)
	}
	if s.mc.Ready() && s.mc.registry.Supports(codec) == nil {
		release()
		return "", fmt.Errorf("%w: codec %s not supported by the router", ErrIncompatibleCapabilities, codec.MimeType)
	}

	p, err := s.mc.produce(ctx, st.transport, engine.ProducerOptions{
		Kind:          req.Kind,
		RtpParameters: params,
		AppData:       req.AppData,
	})
	if err != nil {
		release()
		return "", s.engineError(err)
	}
	st.producers[p.ID()] = p
	s.producers[p.ID()] = req.TransportID
	s.mc.producers.add(p, s.id, req.TransportID)
	stats.Producers.WithLabelValues(string(p.Kind())).Inc()
	release()

	Logger.V(1).Info("producer created", "session_id", s.id, "producer_id", p.ID(), "kind", string(p.Kind()))
	if s.broadcast != nil {
		s.broadcast(s.id, NotificationNewProducer, NewProducerNotification{ProducerID: p.ID(), Kind: string(p.Kind())})
	}
	return p.ID(), nil
}

// Consume creates a consumer of any registered producer on one of the
// session transports.
func (s *Session) Consume(ctx context.Context, req ConsumeRequest) (*ConsumerInfo, error) {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	st, ok := s.transports[req.TransportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransportNotFound, req.TransportID)
	}
	producer, ok := s.mc.producers.get(req.ProducerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, req.ProducerID)
	}

	var caps ortc.RtpCapabilities
	switch {
	case req.RtpCapabilities != nil:
		caps = *req.RtpCapabilities
		if err := ortc.ValidateRtpCapabilities(&caps); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	case req.SDP != "":
		if caps, err = ortc.CapabilitiesFromSDP(req.SDP); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	default:
		return nil, invalidRequest("missing rtpCapabilities")
	}

	if !s.mc.Ready() {
		return nil, ErrMediaContextNotReady
	}
	producerParams := producer.RtpParameters()
	codec := s.mc.registry.Negotiate(caps, producerParams.MediaCodec())
	if codec == nil {
		return nil, fmt.Errorf("%w: cannot consume producer %s", ErrIncompatibleCapabilities, req.ProducerID)
	}

	c, err := s.mc.consume(ctx, st.transport, engine.ConsumerOptions{Producer: producer, Codec: codec})
	if err != nil {
		if errors.Is(err, engine.ErrClosed) && s.State() < SessionClosing {
			return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, req.ProducerID)
		}
		return nil, s.engineError(err)
	}

	transportID, consumerID, producerID := req.TransportID, c.ID(), req.ProducerID
	if !s.mc.producers.subscribe(producerID, consumerID, func() {
		s.producerClosed(transportID, consumerID, producerID)
	}) {
		closeQuietly(c)
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, producerID)
	}
	st.consumers[consumerID] = c
	s.consumers[consumerID] = transportID
	stats.Consumers.WithLabelValues(string(c.Kind())).Inc()

	Logger.V(1).Info("consumer created", "session_id", s.id, "consumer_id", consumerID, "producer_id", producerID, "codec", codec.MimeType)
	return &ConsumerInfo{
		ID:            consumerID,
		ProducerID:    producerID,
		Kind:          c.Kind(),
		RtpParameters: c.RtpParameters(),
	}, nil
}

// CloseTransport closes a transport and everything created on it.
func (s *Session) CloseTransport(ctx context.Context, transportID string) error {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	st, ok := s.transports[transportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransportNotFound, transportID)
	}
	for id := range st.consumers {
		s.closeConsumer(st, id)
	}
	for id := range st.producers {
		s.closeProducer(st, id)
	}
	s.closeTransport(transportID, st)
	return nil
}

// CloseProducer closes a producer of the session. Its consumers in every
// session are closed as well.
func (s *Session) CloseProducer(ctx context.Context, producerID string) error {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	transportID, ok := s.producers[producerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProducerNotFound, producerID)
	}
	s.closeProducer(s.transports[transportID], producerID)
	return nil
}

// CloseConsumer closes a consumer of the session.
func (s *Session) CloseConsumer(ctx context.Context, consumerID string) error {
	_, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	transportID, ok := s.consumers[consumerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsumerNotFound, consumerID)
	}
	s.closeConsumer(s.transports[transportID], consumerID)
	return nil
}

// producerClosed runs when a consumed producer goes away.
func (s *Session) producerClosed(transportID, consumerID, producerID string) {
	s.mu.Lock()
	if s.State() >= SessionClosing {
		s.mu.Unlock()
		return
	}
	st, ok := s.transports[transportID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := st.consumers[consumerID]; !ok {
		s.mu.Unlock()
		return
	}
	s.closeConsumer(st, consumerID)
	s.mu.Unlock()

	Logger.V(1).Info("consumer closed with its producer", "session_id", s.id, "consumer_id", consumerID, "producer_id", producerID)
	s.notify(NotificationConsumerClosed, ConsumerClosedNotification{ConsumerID: consumerID, ProducerID: producerID})
}

// The close helpers must be called with s.mu held.

func (s *Session) closeConsumer(st *sessionTransport, id string) {
	c := st.consumers[id]
	delete(st.consumers, id)
	delete(s.consumers, id)
	s.mc.producers.unsubscribe(c.ProducerID(), id)
	closeQuietly(c)
	stats.Consumers.WithLabelValues(string(c.Kind())).Dec()
}

func (s *Session) closeProducer(st *sessionTransport, id string) {
	p := st.producers[id]
	delete(st.producers, id)
	delete(s.producers, id)
	s.mc.producers.remove(id)
	closeQuietly(p)
	stats.Producers.WithLabelValues(string(p.Kind())).Dec()
}

func (s *Session) closeTransport(id string, st *sessionTransport) {
	delete(s.transports, id)
	closeQuietly(st.transport)
	stats.Transports.Dec()
}

func (s *Session) notify(method string, params interface{}) {
	if s.State() != SessionActive {
		return
	}
	s.notifier.push(method, params)
}

// close tears the session down: consumers first, then producers, then
// transports. Concurrent callers return once it is Closed.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(SessionClosing)
		s.cancel()

		s.mu.Lock()
		for _, st := range s.transports {
			for id := range st.consumers {
				s.closeConsumer(st, id)
			}
		}
		for _, st := range s.transports {
			for id := range st.producers {
				s.closeProducer(st, id)
			}
		}
		for id, st := range s.transports {
			s.closeTransport(id, st)
		}
		s.setState(SessionClosed)
		s.mu.Unlock()

		s.notifier.close()
		Logger.V(0).Info("session closed", "session_id", s.id, "duration", time.Since(s.createdAt).String())
	})
}
