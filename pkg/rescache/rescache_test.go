package rescache

import (
	"testing"
	"time"

	"github.com/pmkol/gaicached/pkg/addrinfo"
	"github.com/pmkol/gaicached/pkg/reqkey"
)

func key(host string) reqkey.Key {
	return reqkey.Canonicalize(host, "", nil)
}

func Test_cache_insertLookup(t *testing.T) {
	c := New()
	h := new(addrinfo.AddrInfo)
	k := key("a.example")

	if displaced := c.Insert(k, Entry{CreatedAt: time.Now(), Handle: h}); displaced != nil {
		t.Fatal("fresh insert must not displace anything")
	}

	e, ok := c.Lookup(k)
	if !ok || e.Handle != h {
		t.Fatal("lookup must return the inserted handle")
	}
	if _, ok := c.Lookup(key("b.example")); ok {
		t.Fatal("unexpected hit")
	}
}

func Test_cache_insertRace(t *testing.T) {
	c := New()
	k := key("a.example")
	winner := new(addrinfo.AddrInfo)
	loser := new(addrinfo.AddrInfo)

	c.Insert(k, Entry{CreatedAt: time.Now(), Handle: winner})
	displaced := c.Insert(k, Entry{CreatedAt: time.Now(), Handle: loser})
	if displaced != winner {
		t.Fatal("second insert must displace the first handle")
	}

	// The displaced handle must be gone from the reverse index.
	if _, ok := c.RemoveByHandle(winner); ok {
		t.Fatal("displaced handle still in reverse index")
	}
	if k2, ok := c.RemoveByHandle(loser); !ok || k2 != k {
		t.Fatal("live handle missing from reverse index")
	}
}

func Test_cache_removeIfStale(t *testing.T) {
	c := New()
	k := key("a.example")
	h := new(addrinfo.AddrInfo)
	now := time.Now()
	ttl := time.Second

	c.Insert(k, Entry{CreatedAt: now, Handle: h})

	if c.RemoveIfStale(k, now.Add(ttl-time.Millisecond), ttl) {
		t.Fatal("fresh entry evicted")
	}
	if !c.RemoveIfStale(k, now.Add(ttl), ttl) {
		t.Fatal("stale entry not evicted")
	}
	if _, ok := c.Lookup(k); ok {
		t.Fatal("entry still visible after eviction")
	}
	if _, ok := c.RemoveByHandle(h); ok {
		t.Fatal("reverse index entry must be removed with the cache entry")
	}
	if c.RemoveIfStale(k, now.Add(ttl), ttl) {
		t.Fatal("second eviction must be a no-op")
	}
}

func Test_cache_removeByHandle(t *testing.T) {
	c := New()
	k := key("a.example")
	h := new(addrinfo.AddrInfo)
	c.Insert(k, Entry{CreatedAt: time.Now(), Handle: h})

	k2, ok := c.RemoveByHandle(h)
	if !ok || k2 != k {
		t.Fatal("remove by handle must find the owning key")
	}
	if c.Len() != 0 {
		t.Fatal("cache entry must be removed with the reverse index entry")
	}
	if _, ok := c.RemoveByHandle(h); ok {
		t.Fatal("second removal must be a no-op")
	}
}
