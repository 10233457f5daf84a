package pool

import (
	"sync"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

var nodePool = sync.Pool{
	New: func() interface{} {
		return new(addrinfo.AddrInfo)
	},
}

// GetNode returns an *addrinfo.AddrInfo from the pool.
// The returned node is NOT zeroed — the caller must fully
// initialize it before linking it into a chain.
func GetNode() *addrinfo.AddrInfo {
	return nodePool.Get().(*addrinfo.AddrInfo)
}

// ReleaseChain returns a whole chain to the pool.
// After calling ReleaseChain, the caller MUST NOT access any node of it.
func ReleaseChain(head *addrinfo.AddrInfo) {
	for head != nil {
		next := head.Next
		// Zero the node to avoid holding references to old data.
		*head = addrinfo.AddrInfo{}
		nodePool.Put(head)
		head = next
	}
}
