// Package addrinfo defines the result chain and hint types of the
// resolve/release API that gaicached intercepts. The types mirror the
// libc addrinfo contract: a resolve call fills a linked chain of
// address nodes and hands the head pointer to the caller, who must
// release it exactly once.
package addrinfo

import "net/netip"

// Address families. Values follow linux libc.
const (
	AF_UNSPEC = 0
	AF_INET   = 2
	AF_INET6  = 10
)

// Socket types.
const (
	SOCK_STREAM = 1
	SOCK_DGRAM  = 2
)

// Hint flags.
const (
	AI_V4MAPPED   = 0x0008
	AI_ADDRCONFIG = 0x0020
)

// Resolve status codes. Zero is success, negative values are failures
// and follow the glibc EAI_* values.
const (
	EAI_NONAME  = -2
	EAI_AGAIN   = -3
	EAI_FAIL    = -4
	EAI_NODATA  = -5
	EAI_SERVICE = -8
)

// Hints narrows what a resolve call should return. A nil *Hints is
// valid and maps to the documented defaults (see reqkey.Canonicalize).
type Hints struct {
	Flags    int
	Family   int
	SockType int
	Protocol int
}

// AddrInfo is one node of a resolve result chain. The head pointer of
// a chain is the handle callers borrow and release; handle equality is
// pointer identity, never structural.
//
// Nodes are owned by whoever built the chain (normally the upstream's
// node pool). After the chain is released the caller must not touch
// any node of it.
type AddrInfo struct {
	Family   int
	SockType int
	Protocol int
	Addr     netip.AddrPort

	// CanonName is only set on the head node.
	CanonName string

	Next *AddrInfo
}

// Len returns the number of nodes in the chain starting at ai.
func (ai *AddrInfo) Len() int {
	n := 0
	for p := ai; p != nil; p = p.Next {
		n++
	}
	return n
}
