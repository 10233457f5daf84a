package reqkey

import (
	"testing"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

func Test_canonicalize_defaults(t *testing.T) {
	k := Canonicalize("a.example", "", nil)
	want := Key{
		Host:   "a.example",
		Flags:  addrinfo.AI_V4MAPPED | addrinfo.AI_ADDRCONFIG,
		Family: addrinfo.AF_UNSPEC,
	}
	if k != want {
		t.Fatalf("unexpected key: %+v", k)
	}
}

func Test_canonicalize_equivalence(t *testing.T) {
	hints := &addrinfo.Hints{
		Family:   addrinfo.AF_INET,
		SockType: addrinfo.SOCK_STREAM,
	}
	a := Canonicalize("a.example", "https", hints)
	b := Canonicalize("a.example", "https", &addrinfo.Hints{
		Family:   addrinfo.AF_INET,
		SockType: addrinfo.SOCK_STREAM,
	})
	if a != b {
		t.Fatal("equivalent requests must map to the same key")
	}

	if Canonicalize("a.example", "https", nil) == a {
		t.Fatal("nil hints must not equal explicit hints")
	}
	if Canonicalize("b.example", "https", hints) == a {
		t.Fatal("different hosts must not collide")
	}
	if Canonicalize("a.example", "http", hints) == a {
		t.Fatal("different services must not collide")
	}
}
