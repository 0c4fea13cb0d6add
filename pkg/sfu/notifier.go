package sfu

import (
	"sync"

	"github.com/gammazero/deque"
)

const (
	// NotificationNewProducer tells a session a producer it can consume exists.
	NotificationNewProducer = "newProducer"
	// NotificationConsumerClosed tells a session one of its consumers is gone.
	NotificationConsumerClosed = "consumerClosed"
)

// Notifier delivers server initiated messages to a connection.
type Notifier interface {
	Notify(method string, params interface{}) error
}

// NewProducerNotification is sent to other sessions when a producer is
// registered.
type NewProducerNotification struct {
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}

// ConsumerClosedNotification is sent when a consumer is closed because its
// producer went away.
type ConsumerClosedNotification struct {
	ConsumerID string `json:"consumerId"`
	ProducerID string `json:"producerId"`
}

type notification struct {
	method string
	params interface{}
}

// notificationQueue delivers notifications of one session in order without
// blocking the code that emits them.
type notificationQueue struct {
	n Notifier

	mu      sync.Mutex
	pending deque.Deque
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newNotificationQueue(n Notifier) *notificationQueue {
	q := &notificationQueue{
		n:    n,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *notificationQueue) push(method string, params interface{}) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending.PushBack(notification{method: method, params: params})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *notificationQueue) pop() (notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Len() == 0 {
		return notification{}, false
	}
	return q.pending.PopFront().(notification), true
}

func (q *notificationQueue) run() {
	defer close(q.done)
	for {
		for {
			n, ok := q.pop()
			if !ok {
				break
			}
			if q.n == nil {
				continue
			}
			if err := q.n.Notify(n.method, n.params); err != nil {
				Logger.V(1).Info("notify failed", "method", n.method, "err", err.Error())
			}
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		<-q.wake
	}
}

// close drains what is queued and stops the queue.
func (q *notificationQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}
