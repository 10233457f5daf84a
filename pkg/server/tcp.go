package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const (
	defaultTCPIdleTimeout = time.Second * 10
)

type tcpConn struct {
	sync.Mutex // guards writes
	net.Conn
}

func (c *tcpConn) writeMsg(b []byte) error {
	c.Lock()
	defer c.Unlock()

	buf := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(buf, uint16(len(b)))
	copy(buf[2:], b)
	_, err := c.Conn.Write(buf)
	return err
}

func readMsgTCP(r io.Reader) (*dns.Msg, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return nil, err
	}
	b := make([]byte, binary.BigEndian.Uint16(lb[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Server) ServeTCP(l net.Listener) error {
	defer l.Close()

	handler := s.opts.DNSHandler
	if handler == nil {
		return errMissingDNSHandler
	}

	if ok := s.trackCloser(l, true); !ok {
		return ErrServerClosed
	}
	defer s.trackCloser(l, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		c, err := l.Accept()
		if err != nil {
			if s.Closed() {
				return ErrServerClosed
			}
			if err, ok := err.(net.Error); ok && err.Timeout() {
				continue
			}
			return fmt.Errorf("unexpected listener err: %w", err)
		}

		go s.handleConnectionTCP(ctx, &tcpConn{Conn: c})
	}
}

func (s *Server) handleConnectionTCP(ctx context.Context, c *tcpConn) {
	defer c.Close()

	if !s.trackCloser(c, true) {
		return
	}
	defer s.trackCloser(c, false)

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	idleTimeout := s.opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultTCPIdleTimeout
	}

	for {
		c.SetReadDeadline(time.Now().Add(idleTimeout))
		q, err := readMsgTCP(c)
		if err != nil {
			return
		}

		go func() {
			r := s.opts.DNSHandler.ServeDNS(connCtx, q)
			b, err := r.Pack()
			if err != nil {
				s.opts.Logger.Warn("failed to pack response", zap.Error(err))
				return
			}
			if err := c.writeMsg(b); err != nil {
				s.opts.Logger.Warn("failed to write response", zap.Error(err), zap.Stringer("to", c.RemoteAddr()))
			}
		}()
	}
}
