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

package bep5

import (
	"net"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadnet/kadrpc/ids"
)

func TestCompactAddrIPv4RoundTrip(t *testing.T) {
	a := CompactAddr{IP: net.ParseIP("192.168.1.1").To4(), Port: 6881}
	raw, err := bencode.Marshal(a)
	require.NoError(t, err)

	var got CompactAddr
	require.NoError(t, bencode.Unmarshal(raw, &got))
	assert.True(t, got.IP.Equal(a.IP))
	assert.Equal(t, a.Port, got.Port)
}

func TestCompactAddrIPv6RoundTrip(t *testing.T) {
	a := CompactAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}
	raw, err := bencode.Marshal(a)
	require.NoError(t, err)

	var got CompactAddr
	require.NoError(t, bencode.Unmarshal(raw, &got))
	assert.True(t, got.IP.Equal(a.IP))
	assert.Equal(t, a.Port, got.Port)
}

func TestCompactAddrUDPAddrNilIP(t *testing.T) {
	var a CompactAddr
	assert.Nil(t, a.UDPAddr())
}

func TestCompactNodesRoundTrip(t *testing.T) {
	nodes := CompactNodes{
		{ID: ids.RandomNodeID(), Addr: CompactAddr{IP: net.ParseIP("1.2.3.4").To4(), Port: 1}},
		{ID: ids.RandomNodeID(), Addr: CompactAddr{IP: net.ParseIP("5.6.7.8").To4(), Port: 2}},
	}
	raw, err := bencode.Marshal(nodes)
	require.NoError(t, err)

	var got CompactNodes
	require.NoError(t, bencode.Unmarshal(raw, &got))
	require.Len(t, got, 2)
	assert.Equal(t, nodes[0].ID, got[0].ID)
	assert.Equal(t, nodes[1].ID, got[1].ID)
	assert.Equal(t, 1, got[0].Addr.Port)
	assert.Equal(t, 2, got[1].Addr.Port)
}

func TestCompactNodesRejectsBadWidth(t *testing.T) {
	var got CompactNodes
	err := bencode.Unmarshal([]byte("3:abc"), &got)
	assert.Error(t, err)
}
