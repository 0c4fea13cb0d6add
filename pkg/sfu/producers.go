package sfu

import (
	"sync"

	"github.com/pion/ion-ortc/pkg/engine"
)

// registeredProducer is a producer discoverable by every session.
type registeredProducer struct {
	producer    engine.Producer
	sessionID   string
	transportID string
	// consumer id -> invalidation callback
	listeners map[string]func()
}

// producerRegistry is the system-wide producer index. It is written by the
// owning session and read by every other one.
type producerRegistry struct {
	mu        sync.RWMutex
	producers map[string]*registeredProducer
}

func newProducerRegistry() *producerRegistry {
	return &producerRegistry{producers: make(map[string]*registeredProducer)}
}

func (r *producerRegistry) add(p engine.Producer, sessionID, transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID()] = &registeredProducer{
		producer:    p,
		sessionID:   sessionID,
		transportID: transportID,
		listeners:   make(map[string]func()),
	}
}

func (r *producerRegistry) get(id string) (engine.Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.producers[id]
	if !ok {
		return nil, false
	}
	return rp.producer, true
}

// subscribe registers onClose for consumerID. It returns false when the
// producer is already gone, in which case onClose is never called.
func (r *producerRegistry) subscribe(producerID, consumerID string, onClose func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.producers[producerID]
	if !ok {
		return false
	}
	rp.listeners[consumerID] = onClose
	return true
}

func (r *producerRegistry) unsubscribe(producerID, consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rp, ok := r.producers[producerID]; ok {
		delete(rp.listeners, consumerID)
	}
}

// remove unregisters a producer and invalidates its consumers. Callbacks run
// on their own goroutines so the owning sessions handle them under their own
// lock.
func (r *producerRegistry) remove(id string) {
	r.mu.Lock()
	rp, ok := r.producers[id]
	delete(r.producers, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, f := range rp.listeners {
		go f()
	}
}

func (r *producerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.producers)
}
