// Package upstream is the real resolve/release implementation behind
// the interception layer. It answers resolve calls with A/AAAA
// lookups against a configured DNS server and builds addrinfo chains
// from pooled nodes.
package upstream

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pmkol/gaicached/pkg/addrinfo"
	"github.com/pmkol/gaicached/pkg/pool"
)

const defaultTimeout = time.Second * 5

var nopLogger = zap.NewNop()

type Opts struct {
	// Logger optionally specifies a logger.
	Logger *zap.Logger

	// Addr is the upstream DNS server "host:port", required.
	Addr string

	// Timeout is the query timeout. Default is 5s.
	Timeout time.Duration
}

type Upstream struct {
	opts   Opts
	client *dns.Client

	// exchange is swappable in tests.
	exchange func(ctx context.Context, m *dns.Msg) (*dns.Msg, error)
}

func NewUpstream(opts Opts) (*Upstream, error) {
	if len(opts.Addr) == 0 {
		return nil, errors.New("upstream addr is required")
	}
	if _, _, err := net.SplitHostPort(opts.Addr); err != nil {
		opts.Addr = net.JoinHostPort(opts.Addr, "53")
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	u := &Upstream{
		opts:   opts,
		client: &dns.Client{Timeout: opts.Timeout},
	}
	u.exchange = func(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
		r, _, err := u.client.ExchangeContext(ctx, m, u.opts.Addr)
		return r, err
	}
	return u, nil
}

// Resolve performs the real name resolution. On success it returns
// the head of a freshly built chain and status 0. On failure it
// returns a nil chain and a negative EAI status.
func (u *Upstream) Resolve(ctx context.Context, host, service string, hints *addrinfo.Hints) (*addrinfo.AddrInfo, int) {
	if hints == nil {
		hints = &addrinfo.Hints{Family: addrinfo.AF_UNSPEC, Flags: addrinfo.AI_V4MAPPED | addrinfo.AI_ADDRCONFIG}
	}

	port, ok := lookupPort(service, hints.SockType)
	if !ok {
		return nil, addrinfo.EAI_SERVICE
	}

	if len(host) == 0 {
		// Null node means local host.
		return u.build(host, localAddrs(hints.Family), port, hints), 0
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if !familyAccepts(hints.Family, ip) {
			return nil, addrinfo.EAI_NODATA
		}
		return u.build(host, []netip.Addr{ip}, port, hints), 0
	}

	addrs, status := u.query(ctx, host, hints)
	if status != 0 {
		return nil, status
	}
	return u.build(host, addrs, port, hints), 0
}

// Release physically reclaims a chain built by Resolve.
func (u *Upstream) Release(h *addrinfo.AddrInfo) {
	pool.ReleaseChain(h)
}

func (u *Upstream) query(ctx context.Context, host string, hints *addrinfo.Hints) ([]netip.Addr, int) {
	switch hints.Family {
	case addrinfo.AF_INET:
		addrs, status := u.queryOne(ctx, host, dns.TypeA)
		if status != 0 {
			return nil, status
		}
		if len(addrs) == 0 {
			return nil, addrinfo.EAI_NODATA
		}
		return addrs, 0
	case addrinfo.AF_INET6:
		addrs, status := u.queryOne(ctx, host, dns.TypeAAAA)
		if len(addrs) == 0 && hints.Flags&addrinfo.AI_V4MAPPED != 0 {
			// No native v6 addresses. Fall back to v4 mapped ones.
			v4, v4status := u.queryOne(ctx, host, dns.TypeA)
			if len(v4) > 0 {
				mapped := make([]netip.Addr, 0, len(v4))
				for _, a := range v4 {
					mapped = append(mapped, netip.AddrFrom16(a.As16()))
				}
				return mapped, 0
			}
			if status == 0 {
				status = v4status
			}
		}
		if status != 0 {
			return nil, status
		}
		if len(addrs) == 0 {
			return nil, addrinfo.EAI_NODATA
		}
		return addrs, 0
	default:
		var v4, v6 []netip.Addr
		var v4status, v6status int

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			v4, v4status = u.queryOne(gCtx, host, dns.TypeA)
			return nil
		})
		g.Go(func() error {
			v6, v6status = u.queryOne(gCtx, host, dns.TypeAAAA)
			return nil
		})
		_ = g.Wait()

		// v6 first, matching the common getaddrinfo sorting.
		addrs := append(v6, v4...)
		if len(addrs) > 0 {
			return addrs, 0
		}
		if v4status != 0 {
			return nil, v4status
		}
		if v6status != 0 {
			return nil, v6status
		}
		return nil, addrinfo.EAI_NODATA
	}
}

// queryOne returns the addresses of one query. An empty slice with
// status 0 means the name exists but has no data of this type.
func (u *Upstream) queryOne(ctx context.Context, host string, qtype uint16) ([]netip.Addr, int) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)

	r, err := u.exchange(ctx, m)
	if err != nil {
		u.opts.Logger.Debug("upstream exchange failed",
			zap.String("host", host), zap.Uint16("qtype", qtype), zap.Error(err))
		return nil, addrinfo.EAI_AGAIN
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, addrinfo.EAI_NONAME
	default:
		return nil, addrinfo.EAI_FAIL
	}

	var addrs []netip.Addr
	for _, rr := range r.Answer {
		switch a := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				addrs = append(addrs, ip)
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(a.AAAA.To16()); ok {
				addrs = append(addrs, ip)
			}
		}
	}
	return addrs, 0
}

// build assembles a chain from pooled nodes. The chain is owned by
// the upstream and must come back through Release.
func (u *Upstream) build(host string, addrs []netip.Addr, port uint16, hints *addrinfo.Hints) *addrinfo.AddrInfo {
	var head, tail *addrinfo.AddrInfo
	for _, a := range addrs {
		n := pool.GetNode()
		*n = addrinfo.AddrInfo{
			Family:   familyOf(a),
			SockType: hints.SockType,
			Protocol: hints.Protocol,
			Addr:     netip.AddrPortFrom(a, port),
		}
		if head == nil {
			n.CanonName = host
			head = n
		} else {
			tail.Next = n
		}
		tail = n
	}
	return head
}

func lookupPort(service string, socktype int) (uint16, bool) {
	if len(service) == 0 {
		return 0, true
	}
	if n, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(n), true
	}

	network := "tcp"
	if socktype == addrinfo.SOCK_DGRAM {
		network = "udp"
	}
	p, err := net.LookupPort(network, service)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}

func localAddrs(family int) []netip.Addr {
	switch family {
	case addrinfo.AF_INET:
		return []netip.Addr{netip.AddrFrom4([4]byte{127, 0, 0, 1})}
	case addrinfo.AF_INET6:
		return []netip.Addr{netip.IPv6Loopback()}
	default:
		return []netip.Addr{netip.IPv6Loopback(), netip.AddrFrom4([4]byte{127, 0, 0, 1})}
	}
}

func familyAccepts(family int, a netip.Addr) bool {
	switch family {
	case addrinfo.AF_INET:
		return a.Is4()
	case addrinfo.AF_INET6:
		return a.Is6()
	default:
		return true
	}
}

func familyOf(a netip.Addr) int {
	if a.Is4() {
		return addrinfo.AF_INET
	}
	return addrinfo.AF_INET6
}
