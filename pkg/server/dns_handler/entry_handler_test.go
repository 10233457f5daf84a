package dns_handler

import (
	"context"
	"net/netip"
	"testing"

	"github.com/miekg/dns"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

type stubResolver struct {
	status   int
	chain    *addrinfo.AddrInfo
	resolved int
	released int
}

func (s *stubResolver) Resolve(_ context.Context, host, service string, hints *addrinfo.Hints) (*addrinfo.AddrInfo, int) {
	s.resolved++
	if s.status < 0 {
		return nil, s.status
	}
	return s.chain, 0
}

func (s *stubResolver) Release(h *addrinfo.AddrInfo) {
	s.released++
}

func chainOf(addrs ...string) *addrinfo.AddrInfo {
	var head, tail *addrinfo.AddrInfo
	for _, s := range addrs {
		a := netip.MustParseAddr(s)
		n := &addrinfo.AddrInfo{Addr: netip.AddrPortFrom(a, 0)}
		if a.Is4() {
			n.Family = addrinfo.AF_INET
		} else {
			n.Family = addrinfo.AF_INET6
		}
		if head == nil {
			head = n
		} else {
			tail.Next = n
		}
		tail = n
	}
	return head
}

func newTestHandler(t *testing.T, r Resolver) *EntryHandler {
	t.Helper()
	h, err := NewEntryHandler(EntryHandlerOpts{Resolver: r})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func query(name string, qtype uint16) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), qtype)
	return q
}

func Test_entryHandler_answer(t *testing.T) {
	stub := &stubResolver{chain: chainOf("192.0.2.1", "192.0.2.2")}
	h := newTestHandler(t, stub)

	r := h.ServeDNS(context.Background(), query("a.example", dns.TypeA))
	if r.Rcode != dns.RcodeSuccess || len(r.Answer) != 2 {
		t.Fatalf("unexpected response: %v", r)
	}
	if r.Answer[0].(*dns.A).A.String() != "192.0.2.1" {
		t.Fatal("unexpected answer")
	}
	if stub.resolved != 1 || stub.released != 1 {
		t.Fatalf("want exactly one resolve/release pair, got %d/%d", stub.resolved, stub.released)
	}
}

func Test_entryHandler_familyFilter(t *testing.T) {
	stub := &stubResolver{chain: chainOf("2001:db8::1")}
	h := newTestHandler(t, stub)

	r := h.ServeDNS(context.Background(), query("a.example", dns.TypeAAAA))
	if len(r.Answer) != 1 {
		t.Fatal("want one AAAA answer")
	}
	if _, ok := r.Answer[0].(*dns.AAAA); !ok {
		t.Fatal("answer type mismatch")
	}
}

func Test_entryHandler_nxdomain(t *testing.T) {
	stub := &stubResolver{status: addrinfo.EAI_NONAME}
	h := newTestHandler(t, stub)

	r := h.ServeDNS(context.Background(), query("missing.example", dns.TypeA))
	if r.Rcode != dns.RcodeNameError {
		t.Fatalf("want NXDOMAIN, got %d", r.Rcode)
	}
	if stub.released != 0 {
		t.Fatal("nothing to release on failure")
	}
}

func Test_entryHandler_servfail(t *testing.T) {
	stub := &stubResolver{status: addrinfo.EAI_AGAIN}
	h := newTestHandler(t, stub)

	r := h.ServeDNS(context.Background(), query("a.example", dns.TypeA))
	if r.Rcode != dns.RcodeServerFailure {
		t.Fatalf("want SERVFAIL, got %d", r.Rcode)
	}
}

func Test_entryHandler_refused(t *testing.T) {
	stub := &stubResolver{}
	h := newTestHandler(t, stub)

	r := h.ServeDNS(context.Background(), query("a.example", dns.TypeMX))
	if r.Rcode != dns.RcodeRefused {
		t.Fatalf("want REFUSED, got %d", r.Rcode)
	}
	if stub.resolved != 0 {
		t.Fatal("unsupported qtype must not resolve")
	}
}
