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

package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSelectable backs CalcInterestOps/SelectionEvent/DoStateChecks with
// plain counters so a test can assert the manager actually drives them,
// without depending on the RPC core's own socket handler.
type fakeSelectable struct {
	conn *net.UDPConn

	readFired  int32
	writeFired int32
	ticks      int32

	mu   sync.Mutex
	want int
}

func (f *fakeSelectable) Channel() net.PacketConn { return f.conn }

func (f *fakeSelectable) CalcInterestOps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.want
}

func (f *fakeSelectable) SelectionEvent(ops int) {
	if ops&OpRead != 0 {
		atomic.AddInt32(&f.readFired, 1)
	}
	if ops&OpWrite != 0 {
		atomic.AddInt32(&f.writeFired, 1)
	}
}

func (f *fakeSelectable) DoStateChecks(now time.Time) {
	atomic.AddInt32(&f.ticks, 1)
}

func (f *fakeSelectable) setWant(ops int) {
	f.mu.Lock()
	f.want = ops
	f.mu.Unlock()
}

func newUDPPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	return a, b
}

func TestManagerFiresReadOnIncomingDatagram(t *testing.T) {
	a, b := newUDPPair(t)
	defer a.Close()
	defer b.Close()

	mgr, err := NewEpollManager(20 * time.Millisecond)
	require.NoError(t, err)
	defer mgr.Close()

	sel := &fakeSelectable{conn: a, want: OpRead}
	require.NoError(t, mgr.Register(sel))

	_, err = b.WriteToUDP([]byte("ping"), a.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sel.readFired) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestManagerDrivesPeriodicStateChecks(t *testing.T) {
	a, b := newUDPPair(t)
	defer a.Close()
	defer b.Close()

	mgr, err := NewEpollManager(10 * time.Millisecond)
	require.NoError(t, err)
	defer mgr.Close()

	sel := &fakeSelectable{conn: a}
	require.NoError(t, mgr.Register(sel))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sel.ticks) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestManagerDeRegisterStopsDelivery(t *testing.T) {
	a, b := newUDPPair(t)
	defer a.Close()
	defer b.Close()

	mgr, err := NewEpollManager(10 * time.Millisecond)
	require.NoError(t, err)
	defer mgr.Close()

	sel := &fakeSelectable{conn: a, want: OpRead}
	require.NoError(t, mgr.Register(sel))
	mgr.DeRegister(sel)

	_, err = b.WriteToUDP([]byte("ping"), a.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&sel.readFired))
}
