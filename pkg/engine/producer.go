package engine

import (
	"sync"

	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/webrtc/v3"
)

type pionProducer struct {
	id        string
	transport *pionTransport
	kind      ortc.MediaKind
	params    ortc.RtpParameters
	track     *webrtc.TrackLocalStaticRTP

	mu     sync.RWMutex
	closed bool
}

func (p *pionProducer) ID() string {
	return p.id
}

func (p *pionProducer) Kind() ortc.MediaKind {
	return p.kind
}

func (p *pionProducer) RtpParameters() ortc.RtpParameters {
	return p.params
}

func (p *pionProducer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *pionProducer) stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *pionProducer) Close() error {
	p.stop()
	p.transport.removeProducer(p.id)
	return nil
}
