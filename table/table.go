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

// Package table is the Kademlia routing table and node bookkeeping
// collaborator: it owns the derived node id, answers query semantics
// (ping/find_node) and records which peers are "known-reachable" (already
// a verified routing-table entry) for the RPC core's loss-rate estimator.
// The RPC core treats it only through the RoutingTable/QueryHandler/
// ApplyContext interfaces it consumes; this is a minimal implementation
// so the core can be exercised end to end. Peer storage, iterative
// lookup orchestration and token management are not implemented here;
// they belong to the lookup layers above this one.
package table

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
	"github.com/kadnet/kadrpc/netutil"
)

const (
	bucketSize  = 8
	numBuckets  = ids.NodeIDLen * 8
	nodeStaleAfter = 15 * time.Minute
)

type nodeRecord struct {
	id       ids.NodeID
	addr     *net.UDPAddr
	lastSeen time.Time
	verified bool
}

// Table is a minimal Kademlia-style routing table: enough bucket
// structure to answer find_node plausibly and to track which addresses
// are "known-reachable", without the full refresh/eviction policy a
// production table would need (that belongs to lookup orchestration,
// which this system treats as an external concern).
type Table struct {
	self ids.NodeID

	mu      sync.RWMutex
	buckets [numBuckets][]*nodeRecord
	byAddr  map[string]*nodeRecord

	netrestrict *netutil.Netlist
}

// New creates a table rooted at a freshly drawn node id.
func New(netrestrict *netutil.Netlist) *Table {
	return &Table{
		self:        ids.RandomNodeID(),
		byAddr:      make(map[string]*nodeRecord),
		netrestrict: netrestrict,
	}
}

// RegisterID returns the derived node id for a newly started RPC server.
// In this simplified table, one Table instance backs one id; a
// production table supporting multiple address families would hand out
// (and later reclaim) one id per family sharing the same underlying
// bucket storage, per the system's IPv4/IPv6 design note.
func (t *Table) RegisterID() ids.NodeID {
	return t.self
}

// ReleaseID releases the derived id back to the table on server stop.
// Nothing to reclaim in this simplified table beyond logging intent at
// the call site; kept as an explicit no-op method so the RoutingTable
// contract has a real method to call.
func (t *Table) ReleaseID(id ids.NodeID) {}

func bucketIndex(a, b ids.NodeID) int {
	for i := 0; i < ids.NodeIDLen; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if x&(1<<uint(bit)) != 0 {
				return i*8 + (7 - bit)
			}
		}
	}
	return numBuckets - 1
}

// IsVerified reports whether addr is already a bonded, known-reachable
// routing-table entry. The RPC core consults this at call-dispatch time
// to decide whether the call should bias the unverified-peer loss-rate
// estimator.
func (t *Table) IsVerified(addr *net.UDPAddr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byAddr[addr.String()]
	return ok && n.verified
}

// Timeout is called by the RPC core when an outbound call to a node
// times out. Repeated timeouts are how a production table would decide
// to evict a bucket entry; this simplified table only clears the
// verified flag once, which is enough to stop biasing the estimator
// without implementing full eviction/refresh policy.
func (t *Table) Timeout(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byAddr[addr.String()]; ok {
		n.verified = false
	}
}

// OnIncomingMessage implements bep5.ApplyContext: every correctly
// classified message, request or response, marks its sender seen and,
// once bonded, verified.
func (t *Table) OnIncomingMessage(from *net.UDPAddr, m *bep5.Msg) {
	sid := m.SenderID()
	if sid == nil {
		return
	}
	id, err := ids.NodeIDFromBytes(sid)
	if err != nil {
		return
	}
	if id == t.self {
		return
	}
	t.see(id, from, m.IsResponse() || m.IsQuery())
}

func (t *Table) see(id ids.NodeID, addr *net.UDPAddr, verify bool) {
	if t.netrestrict != nil && !t.netrestrict.Contains(addr.IP) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := addr.String()
	n, ok := t.byAddr[key]
	if !ok {
		n = &nodeRecord{id: id, addr: addr}
		t.byAddr[key] = n
		bi := bucketIndex(t.self, id)
		if len(t.buckets[bi]) < bucketSize {
			t.buckets[bi] = append(t.buckets[bi], n)
		}
	}
	n.lastSeen = time.Now()
	if verify {
		n.verified = true
	}
}

// OnPing answers a ping query: an empty response carrying only our id
// (the RPC core's send pipeline fills in the "ip" observed-address
// field).
func (t *Table) OnPing(m *bep5.Msg) (*bep5.Msg, *bep5.Error) {
	return bep5.NewPong(m.T, t.self), nil
}

// OnFindNode answers a find_node query with the closest nodes we know.
func (t *Table) OnFindNode(m *bep5.Msg) (*bep5.Msg, *bep5.Error) {
	if m.A == nil || len(m.A.Target) != ids.NodeIDLen {
		return nil, &bep5.Error{Code: bep5.ErrCodeProtocolError, Msg: "missing or malformed target"}
	}
	target, err := ids.NodeIDFromBytes(m.A.Target)
	if err != nil {
		return nil, &bep5.Error{Code: bep5.ErrCodeProtocolError, Msg: "malformed target"}
	}
	closest := t.closest(target, bucketSize)
	nodes := make([]bep5.CompactNode, 0, len(closest))
	for _, n := range closest {
		nodes = append(nodes, bep5.CompactNode{ID: n.id, Addr: bep5.CompactAddr{IP: n.addr.IP, Port: n.addr.Port}})
	}
	return bep5.NewFindNodeResponse(m.T, t.self, nodes), nil
}

// closest returns the k routing-table entries nearest target by bucket
// distance. Ties within a bucket (same distance to target) are broken
// by a deterministic IP ordering (netutil.SortedIPs) rather than
// sort.Slice's unspecified order among equal elements, so repeated
// find_node queries for the same target return a stable node list.
func (t *Table) closest(target ids.NodeID, k int) []*nodeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var all []*nodeRecord
	for _, b := range t.buckets {
		all = append(all, b...)
	}
	ips := make([]net.IP, len(all))
	for i, n := range all {
		ips[i] = n.addr.IP
	}
	rank := make(map[string]int, len(ips))
	for i, ip := range netutil.SortedIPs(ips) {
		rank[ip.String()] = i
	}
	sort.Slice(all, func(i, j int) bool {
		bi, bj := bucketIndex(target, all[i].id), bucketIndex(target, all[j].id)
		if bi != bj {
			return bi < bj
		}
		return rank[all[i].addr.IP.String()] < rank[all[j].addr.IP.String()]
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// NumNodes returns the number of nodes currently tracked, for debugging
// and status output.
func (t *Table) NumNodes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAddr)
}
