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

package table

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
	"github.com/kadnet/kadrpc/netutil"
)

func TestRegisterIDStable(t *testing.T) {
	tbl := New(nil)
	assert.Equal(t, tbl.RegisterID(), tbl.RegisterID())
}

func TestOnIncomingMessageMarksVerified(t *testing.T) {
	tbl := New(nil)
	peer := ids.RandomNodeID()
	addr := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}

	resp := bep5.NewPong("t", peer)
	tbl.OnIncomingMessage(addr, resp)

	assert.True(t, tbl.IsVerified(addr))
	assert.Equal(t, 1, tbl.NumNodes())
}

func TestOnIncomingMessageIgnoresSelf(t *testing.T) {
	tbl := New(nil)
	self := tbl.RegisterID()
	addr := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}

	tbl.OnIncomingMessage(addr, bep5.NewPong("t", self))
	assert.Equal(t, 0, tbl.NumNodes())
}

func TestTimeoutClearsVerified(t *testing.T) {
	tbl := New(nil)
	peer := ids.RandomNodeID()
	addr := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6881}

	tbl.OnIncomingMessage(addr, bep5.NewPong("t", peer))
	require.True(t, tbl.IsVerified(addr))

	tbl.Timeout(addr)
	assert.False(t, tbl.IsVerified(addr))
}

func TestNetrestrictExcludesOutOfRangePeers(t *testing.T) {
	nl, err := netutil.ParseNetlist("10.0.0.0/8")
	require.NoError(t, err)
	tbl := New(nl)

	tbl.OnIncomingMessage(&net.UDPAddr{IP: net.ParseIP("8.8.8.8"), Port: 1}, bep5.NewPong("t", ids.RandomNodeID()))
	assert.Equal(t, 0, tbl.NumNodes())

	tbl.OnIncomingMessage(&net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 1}, bep5.NewPong("t", ids.RandomNodeID()))
	assert.Equal(t, 1, tbl.NumNodes())
}

func TestOnPingAnswersWithSelfID(t *testing.T) {
	tbl := New(nil)
	reply, rpcErr := tbl.OnPing(bep5.NewPing("t", ids.RandomNodeID()))
	require.Nil(t, rpcErr)
	self := tbl.RegisterID()
	assert.Equal(t, self.Bytes(), reply.R.ID)
}

func TestOnFindNodeRejectsMissingTarget(t *testing.T) {
	tbl := New(nil)
	_, rpcErr := tbl.OnFindNode(&bep5.Msg{A: &bep5.Args{ID: ids.RandomNodeID().Bytes()}})
	require.NotNil(t, rpcErr)
	assert.Equal(t, bep5.ErrCodeProtocolError, rpcErr.Code)
}

func TestOnFindNodeReturnsClosestKnown(t *testing.T) {
	tbl := New(nil)
	for i := 0; i < 5; i++ {
		addr := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 6000 + i}
		tbl.OnIncomingMessage(addr, bep5.NewPong("t", ids.RandomNodeID()))
	}
	target := ids.RandomNodeID()
	reply, rpcErr := tbl.OnFindNode(bep5.NewFindNode("t", ids.RandomNodeID(), target))
	require.Nil(t, rpcErr)
	assert.Len(t, reply.R.Nodes, 5)
}
