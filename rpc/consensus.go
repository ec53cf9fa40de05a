// Copyright 2015 The MOAC-core Authors
// This file is part of the MOAC-core library.
//
// The MOAC-core library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The MOAC-core library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the MOAC-core library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"net"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

const originPairsCap = 64
const consensusMinSamples = 20

// consensusTracker is the origin-pairs map plus majority election: a
// bounded, access-ordered LRU from reporting peer to the (ip,port) that
// peer claims to see for us, electing the mode once enough samples have
// accumulated.
type consensusTracker struct {
	mu      sync.Mutex
	origins *lru.Cache // string(source IP) -> *net.UDPAddr

	current atomic.Value // *net.UDPAddr
}

func newConsensusTracker() *consensusTracker {
	c, err := lru.New(originPairsCap)
	if err != nil {
		// Only fails for a non-positive size, which originPairsCap never is.
		panic("rpc: lru.New: " + err.Error())
	}
	return &consensusTracker{origins: c}
}

// Observe records that source reported observed as our external address.
// Only globally-unicast observations are trusted: loopback, link-local,
// multicast and private (RFC 1918, fc00::/7) addresses are ignored.
func (t *consensusTracker) Observe(source net.IP, observed *net.UDPAddr) {
	if observed == nil || observed.IP == nil || !observed.IP.IsGlobalUnicast() || isPrivateIP(observed.IP) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.origins.Add(source.String(), observed)
	if t.origins.Len() > consensusMinSamples {
		t.elect()
	}
}

// isPrivateIP reports whether ip lies in an RFC 1918 or fc00::/7 range,
// which net.IP.IsGlobalUnicast still accepts.
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 10 || (ip4[0] == 172 && ip4[1]&0xf0 == 16) || (ip4[0] == 192 && ip4[1] == 168)
	}
	return len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc
}

// elect recomputes the mode over the current origin-pairs contents. Ties
// are broken by whichever candidate address first reached the current
// maximum count, walking the cache from oldest to newest entry — the
// access-ordered cap means "first to reach the max" is well defined
// regardless of Go's randomized map iteration order, since both count and
// the position at which each count was reached are computed independently
// of iteration sequence before comparing.
func (t *consensusTracker) elect() {
	counts := make(map[string]int)
	reachedAt := make(map[string]int) // position at which key reached its current count
	seq := 0
	for _, k := range t.origins.Keys() {
		v, ok := t.origins.Peek(k)
		if !ok {
			continue
		}
		addr := v.(*net.UDPAddr)
		key := addr.String()
		counts[key]++
		reachedAt[key] = seq
		seq++
	}
	best := ""
	bestCount := -1
	for key, c := range counts {
		if c > bestCount || (c == bestCount && reachedAt[key] < reachedAt[best]) {
			best, bestCount = key, c
		}
	}
	if best == "" {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", best)
	if err != nil {
		return
	}
	t.current.Store(addr)
}

// Get returns the currently elected consensus external address, or nil.
func (t *consensusTracker) Get() *net.UDPAddr {
	v := t.current.Load()
	if v == nil {
		return nil
	}
	return v.(*net.UDPAddr)
}
