// Package rescache maps canonical request keys to cached resolve
// results, together with a reverse index from result handle back to
// the owning key.
//
// The reverse index exists so that a handle about to be physically
// reclaimed (or discovered stale) can find and remove the cache entry
// that still serves it. Invariant: a handle is present in the reverse
// index iff it is the live value of some cache entry.
//
// Cache is not concurrency safe. The interceptor serializes all calls
// under its own lock.
package rescache

import (
	"time"

	"github.com/pmkol/gaicached/pkg/addrinfo"
	"github.com/pmkol/gaicached/pkg/reqkey"
)

// Entry is one cached resolve result. Entries are superseded, never
// mutated, on refresh.
type Entry struct {
	// CreatedAt carries Go's monotonic clock reading, so TTL math is
	// immune to wall clock jumps.
	CreatedAt time.Time
	Handle    *addrinfo.AddrInfo
	Status    int
}

type Cache struct {
	entries map[reqkey.Key]Entry
	owners  map[*addrinfo.AddrInfo]reqkey.Key
}

func New() *Cache {
	return &Cache{
		entries: make(map[reqkey.Key]Entry),
		owners:  make(map[*addrinfo.AddrInfo]reqkey.Key),
	}
}

func (c *Cache) Lookup(key reqkey.Key) (Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Insert makes e authoritative for key. If a concurrent resolver won
// the insert race for the same key, the loser's handle is unhooked
// from the reverse index and returned: it is no longer discoverable
// from the cache side and lives on only through its outstanding
// borrows, eligible for eventual reclamation.
func (c *Cache) Insert(key reqkey.Key, e Entry) (displaced *addrinfo.AddrInfo) {
	if prev, ok := c.entries[key]; ok {
		delete(c.owners, prev.Handle)
		displaced = prev.Handle
	}
	c.entries[key] = e
	c.owners[e.Handle] = key
	return displaced
}

// RemoveIfStale evicts the entry of key iff its age at now reached
// ttl. The reverse index entry is removed first, so the handle stops
// being discoverable before the cache entry goes away.
func (c *Cache) RemoveIfStale(key reqkey.Key, now time.Time, ttl time.Duration) bool {
	e, ok := c.entries[key]
	if !ok || now.Sub(e.CreatedAt) < ttl {
		return false
	}
	delete(c.owners, e.Handle)
	delete(c.entries, key)
	return true
}

// RemoveByHandle removes the cache entry currently owned by h, if
// any. Used on the reclamation path right before the physical free;
// the entry can already be gone if it was superseded or expired.
func (c *Cache) RemoveByHandle(h *addrinfo.AddrInfo) (reqkey.Key, bool) {
	key, ok := c.owners[h]
	if !ok {
		return reqkey.Key{}, false
	}
	delete(c.owners, h)
	delete(c.entries, key)
	return key, true
}

func (c *Cache) Len() int {
	return len(c.entries)
}
