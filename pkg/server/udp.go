package server

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const udpReadBufSize = 64 * 1024

func (s *Server) ServeUDP(c net.PacketConn) error {
	defer c.Close()

	handler := s.opts.DNSHandler
	if handler == nil {
		return errMissingDNSHandler
	}

	if ok := s.trackCloser(c, true); !ok {
		return ErrServerClosed
	}
	defer s.trackCloser(c, false)

	listenerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rb := make([]byte, udpReadBufSize)
	for {
		n, remoteAddr, err := c.ReadFrom(rb)
		if err != nil {
			if s.Closed() {
				return ErrServerClosed
			}
			return fmt.Errorf("unexpected read err: %w", err)
		}

		q := new(dns.Msg)
		if err := q.Unpack(rb[:n]); err != nil {
			s.opts.Logger.Warn("invalid msg", zap.Error(err), zap.Stringer("from", remoteAddr))
			continue
		}

		// handle query
		go func() {
			r := handler.ServeDNS(listenerCtx, q)
			b, err := r.Pack()
			if err != nil {
				s.opts.Logger.Warn("failed to pack response", zap.Error(err))
				return
			}
			if _, err := c.WriteTo(b, remoteAddr); err != nil {
				s.opts.Logger.Warn("failed to write response", zap.Error(err), zap.Stringer("to", remoteAddr))
			}
		}()
	}
}
