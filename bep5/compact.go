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
	"fmt"
	"net"

	"github.com/kadnet/kadrpc/ids"
)

// CompactAddr is an (ip, port) pair encoded on the wire as a raw 6-byte
// (IPv4) or 18-byte (IPv6) bencode string, per BEP-5's compact node info
// format.
type CompactAddr struct {
	IP   net.IP
	Port int
}

func (a CompactAddr) UDPAddr() *net.UDPAddr {
	if a.IP == nil {
		return nil
	}
	return &net.UDPAddr{IP: a.IP, Port: a.Port}
}

func (a CompactAddr) MarshalBencode() ([]byte, error) {
	b, err := marshalCompactAddr(a)
	if err != nil {
		return nil, err
	}
	return bencodeByteString(b), nil
}

func (a *CompactAddr) UnmarshalBencode(b []byte) error {
	raw, err := unbencodeByteString(b)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*a = CompactAddr{}
		return nil
	}
	addr, err := unmarshalCompactAddr(raw)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

func marshalCompactAddr(a CompactAddr) ([]byte, error) {
	ip4 := a.IP.To4()
	if ip4 != nil {
		out := make([]byte, 6)
		copy(out, ip4)
		out[4] = byte(a.Port >> 8)
		out[5] = byte(a.Port)
		return out, nil
	}
	ip16 := a.IP.To16()
	if ip16 == nil {
		return nil, fmt.Errorf("bep5: invalid IP %v", a.IP)
	}
	out := make([]byte, 18)
	copy(out, ip16)
	out[16] = byte(a.Port >> 8)
	out[17] = byte(a.Port)
	return out, nil
}

func unmarshalCompactAddr(raw []byte) (CompactAddr, error) {
	switch len(raw) {
	case 6:
		ip := make(net.IP, 4)
		copy(ip, raw[:4])
		port := int(raw[4])<<8 | int(raw[5])
		return CompactAddr{IP: ip, Port: port}, nil
	case 18:
		ip := make(net.IP, 16)
		copy(ip, raw[:16])
		port := int(raw[16])<<8 | int(raw[17])
		return CompactAddr{IP: ip, Port: port}, nil
	default:
		return CompactAddr{}, fmt.Errorf("bep5: compact addr has %d bytes, want 6 or 18", len(raw))
	}
}

// CompactNode is a single (id, ip, port) triple as it appears inside a
// "nodes" reply.
type CompactNode struct {
	ID   ids.NodeID
	Addr CompactAddr
}

// CompactNodes is a "nodes" value: a concatenation of fixed-width compact
// node records, all of the same address family within one slice.
type CompactNodes []CompactNode

func (ns CompactNodes) MarshalBencode() ([]byte, error) {
	var out []byte
	for _, n := range ns {
		addrBytes, err := marshalCompactAddr(n.Addr)
		if err != nil {
			return nil, err
		}
		out = append(out, n.ID[:]...)
		out = append(out, addrBytes...)
	}
	return bencodeByteString(out), nil
}

func (ns *CompactNodes) UnmarshalBencode(b []byte) error {
	raw, err := unbencodeByteString(b)
	if err != nil {
		return err
	}
	var out []CompactNode
	// Try IPv4 record width first (26 bytes); fall back to IPv6 (38
	// bytes) if the total length isn't a multiple of 26.
	width := 26
	if len(raw)%26 != 0 && len(raw)%38 == 0 {
		width = 38
	}
	if width == 0 || len(raw)%width != 0 {
		return fmt.Errorf("bep5: nodes value has %d bytes, not a multiple of a compact record width", len(raw))
	}
	for i := 0; i < len(raw); i += width {
		rec := raw[i : i+width]
		id, err := ids.NodeIDFromBytes(rec[:ids.NodeIDLen])
		if err != nil {
			return err
		}
		addr, err := unmarshalCompactAddr(rec[ids.NodeIDLen:])
		if err != nil {
			return err
		}
		out = append(out, CompactNode{ID: id, Addr: addr})
	}
	*ns = out
	return nil
}

// bencodeByteString/unbencodeByteString hand-roll the bencode byte-string
// envelope ("<len>:<bytes>") so Compact{Addr,Nodes} can implement
// bencode.Marshaler/Unmarshaler directly over raw bytes without routing
// through the library's reflection path for a type it has no native
// concept of (compact binary records, as opposed to bencode strings of
// printable data).
func bencodeByteString(raw []byte) []byte {
	prefix := fmt.Sprintf("%d:", len(raw))
	out := make([]byte, 0, len(prefix)+len(raw))
	out = append(out, prefix...)
	out = append(out, raw...)
	return out
}

func unbencodeByteString(b []byte) ([]byte, error) {
	i := 0
	for i < len(b) && b[i] != ':' {
		i++
	}
	if i == len(b) {
		return nil, fmt.Errorf("bep5: malformed bencode byte string %q", b)
	}
	n := 0
	for _, c := range b[:i] {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("bep5: malformed bencode byte string length %q", b[:i])
		}
		n = n*10 + int(c-'0')
	}
	rest := b[i+1:]
	if n > len(rest) {
		return nil, fmt.Errorf("bep5: bencode byte string length %d exceeds available %d", n, len(rest))
	}
	return rest[:n], nil
}
