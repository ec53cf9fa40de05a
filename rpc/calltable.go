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
	"sync/atomic"
	"time"

	"github.com/kadnet/kadrpc/ids"
)

// callTable is the concurrent mapping from transaction id to in-flight
// RPCCall. Insertion is compare-and-set (sync.Map.LoadOrStore); removal
// is idempotent (each call's own CAS-guarded "removed" flag serializes
// racing terminal paths) and conditional on map identity (remove only
// takes effect if c is still the entry under its id). The active-call
// ceiling is enforced by tryInsertBounded's own bounded CAS on size,
// not by a caller checking Len() beforehand.
type callTable struct {
	m    atomicMap
	size int64 // atomic
}

func newCallTable() *callTable {
	return &callTable{}
}

// tryInsert inserts c under c.Txn iff no entry currently occupies that
// key. Returns false on collision, in which case the caller should draw
// a fresh transaction id and retry.
func (t *callTable) tryInsert(c *RPCCall) bool {
	if !t.m.LoadOrStore(c.Txn, c) {
		return false
	}
	atomic.AddInt64(&t.size, 1)
	return true
}

// tryInsertBounded is tryInsert with the active-call ceiling folded
// into the same atomic step, rather than left to a separate
// check-then-act on size: it reserves a slot with a bounded
// compare-and-swap on size and only then stamps c with txn and inserts
// it. Two concurrent callers racing for the last free slot can therefore
// never both believe they were admitted, unlike a plain
// "if Len() < max" guard followed by an unconditional insert.
//
// admitted is true iff c now occupies the table under txn. When
// admitted is false, collided reports why: true means txn collided with
// an existing entry and the reserved slot was released again (the caller
// should draw a fresh transaction id and call tryInsertBounded again);
// false means the table is already at max and neither a slot nor an id
// was taken (the caller should stop retrying and queue c instead, still
// id-less).
func (t *callTable) tryInsertBounded(c *RPCCall, txn ids.TxnID, max int) (admitted, collided bool) {
	for {
		cur := atomic.LoadInt64(&t.size)
		if cur >= int64(max) {
			return false, false
		}
		if atomic.CompareAndSwapInt64(&t.size, cur, cur+1) {
			break
		}
	}
	c.Txn = txn
	if !t.m.LoadOrStore(txn, c) {
		atomic.AddInt64(&t.size, -1)
		return false, true
	}
	return true, true
}

// remove deletes c from the table iff c is still the entry recorded
// under its own transaction id. The identity check matters on two
// paths: a call terminated while still waiting in the backpressure queue
// never occupied the table at all, and a transaction id retired and
// reused must not have the new occupant evicted by the old call's
// late terminal event.
func (t *callTable) remove(c *RPCCall) {
	v, loaded := t.m.LoadAndDelete(c.Txn)
	if !loaded {
		return
	}
	if v != c {
		t.m.LoadOrStore(c.Txn, v)
		return
	}
	atomic.AddInt64(&t.size, -1)
}

func (t *callTable) find(txn ids.TxnID) (*RPCCall, bool) {
	v, ok := t.m.Load(txn)
	if !ok {
		return nil, false
	}
	return v, true
}

func (t *callTable) Len() int {
	return int(atomic.LoadInt64(&t.size))
}

// sweepTimeouts is the external call-timeout scheduler: it walks
// the live calls, fires Timeout on any whose expected RTT window has
// elapsed and removes it from the table. Calls complete concurrently with
// the sweep; each call's own CAS-guarded finish() makes a redundant
// Timeout on an already-completed call a harmless no-op, and remove's
// identity check makes a removal the owner already did a no-op too.
func (t *callTable) sweepTimeouts(now time.Time) {
	var expired []*RPCCall
	t.m.Range(func(_ ids.TxnID, c *RPCCall) bool {
		if now.Sub(c.createdAt) >= c.ExpectedRTT() {
			expired = append(expired, c)
		}
		return true
	})
	for _, c := range expired {
		c.Timeout()
		t.remove(c)
	}
}
