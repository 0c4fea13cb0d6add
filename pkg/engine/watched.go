package engine

import (
	"net"
	"sync/atomic"
)

// watchedPacketConn reports read failures of a shared socket that were not
// caused by closing it. Every transport multiplexed on the socket is dead
// once that happens.
type watchedPacketConn struct {
	net.PacketConn
	closed  int32
	onError func(error)
}

func newWatchedPacketConn(conn net.PacketConn, onError func(error)) *watchedPacketConn {
	return &watchedPacketConn{PacketConn: conn, onError: onError}
}

func (c *watchedPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	n, addr, err := c.PacketConn.ReadFrom(p)
	if err != nil && atomic.LoadInt32(&c.closed) == 0 && c.onError != nil {
		c.onError(err)
	}
	return n, addr, err
}

func (c *watchedPacketConn) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	return c.PacketConn.Close()
}
