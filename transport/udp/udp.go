// Package udp is the one concrete Transport this module ships: a real
// UDP socket, bound the way the teacher's pkg/can/socketcanv2 binds a
// raw CAN socket — a syscall-level setsockopt tweak (here SO_REUSEPORT,
// there CAN_RAW_RECV_OWN_MSGS) applied through net.ListenConfig.Control,
// then a read loop that feeds the engine.
package udp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/transport"
)

// Conn wraps a *net.UDPConn as a transport.Transport and drives a read
// loop that calls back into the engine via transport.ReceiveFunc.
type Conn struct {
	logger *slog.Logger
	conn   *net.UDPConn
	secure bool

	mu     sync.Mutex
	closed bool
}

// Listen opens addr ("0.0.0.0:5683" style) with SO_REUSEPORT set, so
// several processes (or several gocoap tests in the same binary) can
// bind the same port, mirroring the teacher's socketcanv2 pattern of
// tuning the socket at bind time rather than after the fact.
func Listen(logger *slog.Logger, addr string, secure bool) (*Conn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}

	return &Conn{logger: logger, conn: pc.(*net.UDPConn), secure: secure}, nil
}

// Send implements transport.Transport.
func (c *Conn) Send(ep endpoint.Endpoint, data []byte) error {
	_, err := c.conn.WriteToUDP(data, ep.UDPAddr())
	if err != nil {
		c.logger.Warn("udp send failed", "endpoint", ep.String(), "err", err)
	}
	return err
}

// Serve reads datagrams until the connection is closed, handing each one
// to recv. It blocks; callers typically run it in its own goroutine.
func (c *Conn) Serve(recv transport.ReceiveFunc) error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		datagram := append([]byte(nil), buf[:n]...)
		recv(endpoint.FromUDPAddr(addr, c.secure), datagram)
	}
}

// Close stops a running Serve loop.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// LocalAddr reports the bound address, mainly useful in tests that bind
// to port 0 and need to learn the assigned port.
func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

var _ transport.Transport = (*Conn)(nil)
