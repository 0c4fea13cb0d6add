package engine

import (
	"sync"

	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/webrtc/v3"
)

type pionConsumer struct {
	id         string
	transport  *pionTransport
	producerID string
	kind       ortc.MediaKind
	params     ortc.RtpParameters
	sender     *webrtc.RTPSender

	once sync.Once
}

func (c *pionConsumer) ID() string {
	return c.id
}

func (c *pionConsumer) ProducerID() string {
	return c.producerID
}

func (c *pionConsumer) Kind() ortc.MediaKind {
	return c.kind
}

func (c *pionConsumer) RtpParameters() ortc.RtpParameters {
	return c.params
}

func (c *pionConsumer) stop() {
	c.once.Do(func() {
		if err := c.sender.Stop(); err != nil {
			Logger.Error(err, "stopping rtp sender", "consumer_id", c.id)
		}
	})
}

func (c *pionConsumer) Close() error {
	c.stop()
	c.transport.removeConsumer(c.id)
	return nil
}
