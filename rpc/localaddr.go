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

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// packetConnReader abstracts the ipv4/ipv6 control-message-aware read
// path: when a socket is bound to a wildcard address on a multihomed
// host, the plain net.UDPConn read path has no way to tell which local
// address a given datagram actually arrived on. The ipv4/ipv6 packages'
// destination control message fills that gap.
type packetConnReader interface {
	ReadFrom(b []byte) (n int, src net.Addr, dst net.IP, err error)
}

type ipv4Reader struct{ pc *ipv4.PacketConn }

func (r *ipv4Reader) ReadFrom(b []byte) (int, net.Addr, net.IP, error) {
	n, cm, src, err := r.pc.ReadFrom(b)
	if err != nil || cm == nil {
		return n, src, nil, err
	}
	return n, src, cm.Dst, nil
}

type ipv6Reader struct{ pc *ipv6.PacketConn }

func (r *ipv6Reader) ReadFrom(b []byte) (int, net.Addr, net.IP, error) {
	n, cm, src, err := r.pc.ReadFrom(b)
	if err != nil || cm == nil {
		return n, src, nil, err
	}
	return n, src, cm.Dst, nil
}

// newPacketConnReader wraps conn with the address-family-appropriate
// control-message reader. Returns nil if the platform/conn combination
// doesn't support requesting destination control messages; callers fall
// back to the plain net.UDPConn read path.
func newPacketConnReader(conn *net.UDPConn, v6 bool) packetConnReader {
	if v6 {
		pc := ipv6.NewPacketConn(conn)
		if err := pc.SetControlMessage(ipv6.FlagDst, true); err != nil {
			return nil
		}
		return &ipv6Reader{pc: pc}
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		return nil
	}
	return &ipv4Reader{pc: pc}
}

// isWildcardBind reports whether laddr has no specific bind IP, the
// case where learning the per-datagram local destination actually adds
// information.
func isWildcardBind(laddr *net.UDPAddr) bool {
	return laddr == nil || laddr.IP == nil || laddr.IP.IsUnspecified()
}
