// Package dns_handler turns DNS queries into resolve/release pairs on
// the interception layer.
package dns_handler

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

const (
	defaultQueryTimeout = time.Second * 5
	defaultReplyTTL     = 10
)

var (
	nopLogger          = zap.NewNop()
	errMissingResolver = errors.New("missing resolver")
)

// Resolver is the borrow/release surface the handler drives. It is
// normally an *intercept.Interceptor.
type Resolver interface {
	Resolve(ctx context.Context, host, service string, hints *addrinfo.Hints) (*addrinfo.AddrInfo, int)
	Release(h *addrinfo.AddrInfo)
}

type Handler interface {
	// ServeDNS handles incoming request q and returns a response.
	// It always returns a valid response, even on failures.
	ServeDNS(ctx context.Context, q *dns.Msg) *dns.Msg
}

type EntryHandlerOpts struct {
	// Logger optionally specifies a logger.
	Logger *zap.Logger

	// Resolver is required.
	Resolver Resolver

	// QueryTimeout limits a single query. Default is 5s.
	QueryTimeout time.Duration

	// ReplyTTL is the TTL of synthesized answer records. Default is 10.
	ReplyTTL uint32
}

func (opts *EntryHandlerOpts) init() {
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.ReplyTTL == 0 {
		opts.ReplyTTL = defaultReplyTTL
	}
}

type EntryHandler struct {
	opts EntryHandlerOpts
}

func NewEntryHandler(opts EntryHandlerOpts) (*EntryHandler, error) {
	opts.init()
	if opts.Resolver == nil {
		return nil, errMissingResolver
	}
	return &EntryHandler{opts: opts}, nil
}

// ServeDNS performs exactly one resolve call and, when a handle was
// returned, exactly one release call. That pairing is the workload the
// interception layer's deferred reclamation is designed around.
func (h *EntryHandler) ServeDNS(ctx context.Context, q *dns.Msg) *dns.Msg {
	if len(q.Question) != 1 {
		return refused(q)
	}
	question := q.Question[0]

	var family int
	switch question.Qtype {
	case dns.TypeA:
		family = addrinfo.AF_INET
	case dns.TypeAAAA:
		family = addrinfo.AF_INET6
	default:
		return refused(q)
	}

	host := trimFqdn(question.Name)
	hints := &addrinfo.Hints{
		Family: family,
		Flags:  addrinfo.AI_V4MAPPED | addrinfo.AI_ADDRCONFIG,
	}

	qCtx, cancel := context.WithTimeout(ctx, h.opts.QueryTimeout)
	defer cancel()

	res, status := h.opts.Resolver.Resolve(qCtx, host, "", hints)
	if res != nil {
		defer h.opts.Resolver.Release(res)
	}

	r := new(dns.Msg)
	r.SetReply(q)
	r.RecursionAvailable = true

	if status < 0 {
		switch status {
		case addrinfo.EAI_NONAME:
			r.Rcode = dns.RcodeNameError
		case addrinfo.EAI_NODATA:
			r.Rcode = dns.RcodeSuccess
		default:
			h.opts.Logger.Warn("resolve failed",
				zap.String("host", host), zap.Int("status", status))
			r.Rcode = dns.RcodeServerFailure
		}
		return r
	}

	for p := res; p != nil; p = p.Next {
		addr := p.Addr.Addr()
		hdr := dns.RR_Header{
			Name:   question.Name,
			Class:  dns.ClassINET,
			Ttl:    h.opts.ReplyTTL,
			Rrtype: question.Qtype,
		}
		switch question.Qtype {
		case dns.TypeA:
			if !addr.Is4() && !addr.Is4In6() {
				continue
			}
			a4 := addr.As4()
			r.Answer = append(r.Answer, &dns.A{Hdr: hdr, A: net.IP(a4[:])})
		case dns.TypeAAAA:
			if !addr.Is6() {
				continue
			}
			a16 := addr.As16()
			r.Answer = append(r.Answer, &dns.AAAA{Hdr: hdr, AAAA: net.IP(a16[:])})
		}
	}
	return r
}

func refused(q *dns.Msg) *dns.Msg {
	r := new(dns.Msg)
	r.SetReply(q)
	r.Rcode = dns.RcodeRefused
	return r
}

func trimFqdn(name string) string {
	if dns.IsFqdn(name) {
		return name[:len(name)-1]
	}
	return name
}
