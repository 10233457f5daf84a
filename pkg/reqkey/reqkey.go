// Package reqkey canonicalizes resolve call parameters into a
// comparable key.
package reqkey

import "github.com/pmkol/gaicached/pkg/addrinfo"

// Key is the canonical form of a resolve call's parameters. Two calls
// are equivalent iff all six fields are equal. Key is a plain value,
// safe to use as a map key, and never mutated after Canonicalize.
type Key struct {
	Host     string
	Service  string
	Flags    int
	Family   int
	SockType int
	Protocol int
}

// Canonicalize builds a Key from raw resolve parameters. Nil hints
// take the same defaults libc applies when the hints argument of
// getaddrinfo is NULL.
func Canonicalize(host, service string, hints *addrinfo.Hints) Key {
	if hints == nil {
		return Key{
			Host:    host,
			Service: service,
			Flags:   addrinfo.AI_V4MAPPED | addrinfo.AI_ADDRCONFIG,
			Family:  addrinfo.AF_UNSPEC,
		}
	}
	return Key{
		Host:     host,
		Service:  service,
		Flags:    hints.Flags,
		Family:   hints.Family,
		SockType: hints.SockType,
		Protocol: hints.Protocol,
	}
}
