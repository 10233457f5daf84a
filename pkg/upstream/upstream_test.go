package upstream

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/miekg/dns"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

func newTestUpstream(t *testing.T, exchange func(ctx context.Context, m *dns.Msg) (*dns.Msg, error)) *Upstream {
	t.Helper()
	u, err := NewUpstream(Opts{Addr: "127.0.0.1:53"})
	if err != nil {
		t.Fatal(err)
	}
	u.exchange = exchange
	return u
}

func answering(v4 []string, v6 []string) func(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	return func(_ context.Context, m *dns.Msg) (*dns.Msg, error) {
		r := new(dns.Msg)
		r.SetReply(m)
		q := m.Question[0]
		switch q.Qtype {
		case dns.TypeA:
			for _, s := range v4 {
				r.Answer = append(r.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP(s).To4(),
				})
			}
		case dns.TypeAAAA:
			for _, s := range v6 {
				r.Answer = append(r.Answer, &dns.AAAA{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 60},
					AAAA: net.ParseIP(s),
				})
			}
		}
		return r, nil
	}
}

func chainAddrs(h *addrinfo.AddrInfo) []netip.Addr {
	var out []netip.Addr
	for p := h; p != nil; p = p.Next {
		out = append(out, p.Addr.Addr())
	}
	return out
}

func Test_resolve_unspec(t *testing.T) {
	u := newTestUpstream(t, answering([]string{"192.0.2.1"}, []string{"2001:db8::1"}))

	h, status := u.Resolve(context.Background(), "a.example", "443", nil)
	if status != 0 {
		t.Fatalf("unexpected status %d", status)
	}
	defer u.Release(h)

	addrs := chainAddrs(h)
	if len(addrs) != 2 {
		t.Fatalf("want 2 addrs, got %d", len(addrs))
	}
	// v6 sorts first.
	if !addrs[0].Is6() || addrs[1].String() != "192.0.2.1" {
		t.Fatalf("unexpected addrs %v", addrs)
	}
	if h.CanonName != "a.example" {
		t.Fatal("canon name must be set on the head node")
	}
	if h.Addr.Port() != 443 {
		t.Fatalf("unexpected port %d", h.Addr.Port())
	}
}

func Test_resolve_familySelects(t *testing.T) {
	u := newTestUpstream(t, answering([]string{"192.0.2.1"}, []string{"2001:db8::1"}))

	h, status := u.Resolve(context.Background(), "a.example", "", &addrinfo.Hints{Family: addrinfo.AF_INET})
	if status != 0 {
		t.Fatal("unexpected status")
	}
	defer u.Release(h)

	if h.Len() != 1 || h.Family != addrinfo.AF_INET {
		t.Fatalf("AF_INET must only return v4 nodes, got %d nodes", h.Len())
	}
}

func Test_resolve_v4mapped(t *testing.T) {
	u := newTestUpstream(t, answering([]string{"192.0.2.1"}, nil))

	h, status := u.Resolve(context.Background(), "a.example", "", &addrinfo.Hints{
		Family: addrinfo.AF_INET6,
		Flags:  addrinfo.AI_V4MAPPED,
	})
	if status != 0 {
		t.Fatalf("unexpected status %d", status)
	}
	defer u.Release(h)

	if h.Len() != 1 || !h.Addr.Addr().Is4In6() {
		t.Fatal("want a v4 mapped v6 address")
	}
}

func Test_resolve_nxdomain(t *testing.T) {
	u := newTestUpstream(t, func(_ context.Context, m *dns.Msg) (*dns.Msg, error) {
		r := new(dns.Msg)
		r.SetReply(m)
		r.Rcode = dns.RcodeNameError
		return r, nil
	})

	h, status := u.Resolve(context.Background(), "missing.example", "", &addrinfo.Hints{Family: addrinfo.AF_INET})
	if h != nil || status != addrinfo.EAI_NONAME {
		t.Fatalf("want EAI_NONAME, got %d", status)
	}
}

func Test_resolve_networkError(t *testing.T) {
	u := newTestUpstream(t, func(_ context.Context, m *dns.Msg) (*dns.Msg, error) {
		return nil, errors.New("mocked network error")
	})

	h, status := u.Resolve(context.Background(), "a.example", "", &addrinfo.Hints{Family: addrinfo.AF_INET})
	if h != nil || status != addrinfo.EAI_AGAIN {
		t.Fatalf("want EAI_AGAIN, got %d", status)
	}
}

func Test_resolve_ipLiteral(t *testing.T) {
	called := false
	u := newTestUpstream(t, func(_ context.Context, m *dns.Msg) (*dns.Msg, error) {
		called = true
		return nil, errors.New("must not query")
	})

	h, status := u.Resolve(context.Background(), "192.0.2.7", "80", nil)
	if status != 0 || called {
		t.Fatal("ip literal must not reach the network")
	}
	defer u.Release(h)

	if h.Addr.Addr().String() != "192.0.2.7" || h.Addr.Port() != 80 {
		t.Fatalf("unexpected addr %v", h.Addr)
	}
}

func Test_resolve_badService(t *testing.T) {
	u := newTestUpstream(t, answering([]string{"192.0.2.1"}, nil))

	_, status := u.Resolve(context.Background(), "a.example", "no-such-service-zz", nil)
	if status != addrinfo.EAI_SERVICE {
		t.Fatalf("want EAI_SERVICE, got %d", status)
	}
}
