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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
)

func newTableCall(txn ids.TxnID) *RPCCall {
	c := NewCall(bep5.NewPing("", ids.RandomNodeID()), &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1})
	c.Txn = txn
	return c
}

func TestTryInsertRejectsCollision(t *testing.T) {
	table := newCallTable()
	txn := ids.RandomTxnID()
	a := newTableCall(txn)
	b := newTableCall(txn)

	assert.True(t, table.tryInsert(a))
	assert.False(t, table.tryInsert(b))
	assert.Equal(t, 1, table.Len())
}

func TestFindAfterInsert(t *testing.T) {
	table := newCallTable()
	txn := ids.RandomTxnID()
	c := newTableCall(txn)
	require.True(t, table.tryInsert(c))

	got, ok := table.find(txn)
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestRemoveDecrementsSize(t *testing.T) {
	table := newCallTable()
	txn := ids.RandomTxnID()
	c := newTableCall(txn)
	require.True(t, table.tryInsert(c))

	table.remove(c)
	assert.Equal(t, 0, table.Len())
	_, ok := table.find(txn)
	assert.False(t, ok)
}

func TestRemoveIsConditionalOnIdentity(t *testing.T) {
	table := newCallTable()
	txn := ids.RandomTxnID()
	old := newTableCall(txn)
	current := newTableCall(txn)
	require.True(t, table.tryInsert(current))

	table.remove(old)
	got, ok := table.find(txn)
	require.True(t, ok)
	assert.Same(t, current, got)
	assert.Equal(t, 1, table.Len())
}

func TestRemoveOfNeverInsertedCallLeavesSizeAlone(t *testing.T) {
	table := newCallTable()
	queued := newTableCall(ids.TxnID{})
	table.remove(queued)
	assert.Equal(t, 0, table.Len())
}

func TestSweepTimeoutsFiresOnlyExpired(t *testing.T) {
	table := newCallTable()

	fresh := newTableCall(ids.RandomTxnID())
	freshOwner := &fakeOwner{}
	fresh.owner = freshOwner
	fresh.SetExpectedRTT(time.Hour)
	require.True(t, table.tryInsert(fresh))

	expired := newTableCall(ids.RandomTxnID())
	expiredOwner := &fakeOwner{}
	expired.owner = expiredOwner
	expiredListener := &recordingListener{}
	expired.AddListener(expiredListener)
	expired.createdAt = time.Now().Add(-time.Minute)
	expired.SetExpectedRTT(time.Millisecond)
	require.True(t, table.tryInsert(expired))

	table.sweepTimeouts(time.Now())

	assert.Equal(t, 1, expiredListener.timeouts)
	assert.Len(t, expiredOwner.removed, 1)
	assert.Empty(t, freshOwner.removed)
	assert.Equal(t, 1, table.Len())
}

func TestTryInsertBoundedRejectsAtCeiling(t *testing.T) {
	table := newCallTable()
	a := newTableCall(ids.RandomTxnID())
	b := newTableCall(ids.RandomTxnID())

	admitted, collided := table.tryInsertBounded(a, a.Txn, 1)
	assert.True(t, admitted)
	assert.True(t, collided)
	assert.Equal(t, 1, table.Len())

	admitted, collided = table.tryInsertBounded(b, b.Txn, 1)
	assert.False(t, admitted)
	assert.False(t, collided)
	assert.Equal(t, 1, table.Len())
	_, ok := table.find(b.Txn)
	assert.False(t, ok)
}

func TestTryInsertBoundedRetriesOnCollisionWithoutLeakingReservation(t *testing.T) {
	table := newCallTable()
	txn := ids.RandomTxnID()
	a := newTableCall(txn)
	require.True(t, table.tryInsert(a))

	b := newTableCall(txn)
	admitted, collided := table.tryInsertBounded(b, txn, 2)
	assert.False(t, admitted)
	assert.True(t, collided)
	assert.Equal(t, 1, table.Len())

	admitted, collided = table.tryInsertBounded(b, ids.RandomTxnID(), 2)
	assert.True(t, admitted)
	assert.True(t, collided)
	assert.Equal(t, 2, table.Len())
}

func TestTryInsertBoundedNeverExceedsCeilingConcurrently(t *testing.T) {
	table := newCallTable()
	const max = 8
	const attempts = 64

	var wg sync.WaitGroup
	var admittedCount int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTableCall(ids.RandomTxnID())
			admitted, _ := table.tryInsertBounded(c, c.Txn, max)
			if admitted {
				atomic.AddInt64(&admittedCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, max, admittedCount)
	assert.Equal(t, max, table.Len())
}

func TestSweepTimeoutsIsIdempotentUnderRaceWithComplete(t *testing.T) {
	table := newCallTable()
	c := newTableCall(ids.RandomTxnID())
	owner := &fakeOwner{}
	c.owner = owner
	l := &recordingListener{}
	c.AddListener(l)
	c.createdAt = time.Now().Add(-time.Minute)
	c.SetExpectedRTT(time.Millisecond)
	require.True(t, table.tryInsert(c))

	assert.True(t, c.complete(bep5.NewPong("", ids.RandomNodeID())))
	table.sweepTimeouts(time.Now())

	assert.Len(t, l.responses, 1)
	assert.Equal(t, 0, l.timeouts)
	assert.Len(t, owner.removed, 1)
}
