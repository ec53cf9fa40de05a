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

// Package netutil carries the small set of IP-address helpers the RPC core
// and the routing table both need: the relay-forgery check used when a
// peer hands us node records inside a reply, a blocklist, and a classifier
// for transient vs. fatal socket errors. This mirrors the discovery
// package's own netutil dependency.
package netutil

import (
	"errors"
	"net"
	"sort"
)

var (
	errInvalid       = errors.New("invalid IP")
	errUnspecified   = errors.New("zero address")
	errSpecial       = errors.New("special network")
	errLoopback      = errors.New("loopback address from non-loopback host")
	errLAN           = errors.New("LAN address from WAN peer")
)

// CheckRelayIP reports whether an IP relayed from the given sender IP
// is a valid connection target.
//
// There are four rules:
//   - Special network addresses are never valid.
//   - Loopback addresses are OK if relayed by a loopback peer.
//   - LAN addresses are OK if relayed by a LAN peer.
//   - All other addresses are always acceptable.
func CheckRelayIP(sender, addr net.IP) error {
	if len(addr) != net.IPv4len && len(addr) != net.IPv6len {
		return errInvalid
	}
	if addr.IsUnspecified() {
		return errUnspecified
	}
	if checkSpecialNetwork(addr) {
		return errSpecial
	}
	if addr.IsLoopback() && !sender.IsLoopback() {
		return errLoopback
	}
	if isLAN(addr) && !isLAN(sender) {
		return errLAN
	}
	return nil
}

func checkSpecialNetwork(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return special4.Contains(ip4)
	}
	return special6.Contains(ip)
}

func isLAN(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		return lan4.Contains(ip4)
	}
	return lan6.Contains(ip)
}

// Netlist is a list of IP net ranges.
type Netlist []net.IPNet

// ParseNetlist parses a comma-separated list of CIDR masks. Whitespace and
// extra commas are ignored.
func ParseNetlist(s string) (*Netlist, error) {
	var ws Netlist
	for _, x := range splitAndTrim(s) {
		_, n, err := net.ParseCIDR(x)
		if err != nil {
			return nil, err
		}
		ws = append(ws, *n)
	}
	return &ws, nil
}

func splitAndTrim(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			field := trimSpace(s[start:i])
			if field != "" {
				out = append(out, field)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// Contains reports whether the list contains the given IP address.
func (l *Netlist) Contains(ip net.IP) bool {
	if l == nil {
		return false
	}
	for _, net := range *l {
		if net.Contains(ip) {
			return true
		}
	}
	return false
}

var (
	lan4 = Netlist{
		parseCIDR("0.0.0.0/8"),
		parseCIDR("10.0.0.0/8"),
		parseCIDR("172.16.0.0/12"),
		parseCIDR("192.168.0.0/16"),
		parseCIDR("169.254.0.0/16"),
	}
	lan6 = Netlist{
		parseCIDR("fe80::/10"),
		parseCIDR("fc00::/7"),
	}
	special4 = Netlist{
		parseCIDR("192.0.0.0/29"),
		parseCIDR("192.0.2.0/24"),
		parseCIDR("198.18.0.0/15"),
		parseCIDR("198.51.100.0/24"),
		parseCIDR("203.0.113.0/24"),
		parseCIDR("240.0.0.0/4"),
	}
	special6 = Netlist{
		parseCIDR("2001::/23"),
		parseCIDR("2001:2::/48"),
		parseCIDR("2001:db8::/32"),
		parseCIDR("2001:10::/28"),
	}
)

func parseCIDR(s string) net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic("bad CIDR: " + s)
	}
	return *n
}

// IsTemporaryError reports whether err is a recoverable read/write error
// on a UDP socket (e.g. ECONNRESET on a previous write to a now-closed
// remote, or transient resource exhaustion), as opposed to one that means
// the socket itself is no longer usable.
func IsTemporaryError(err error) bool {
	type temporary interface {
		Temporary() bool
	}
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}

// SortedIPs returns a sorted copy of ips, lexicographically by byte value.
// Used by the routing table to break find_node bucket-distance ties
// deterministically rather than leaving them to sort.Slice's unspecified
// ordering among equal elements.
func SortedIPs(ips []net.IP) []net.IP {
	out := make([]net.IP, len(ips))
	copy(out, ips)
	sort.Slice(out, func(i, j int) bool {
		return string(out[i]) < string(out[j])
	})
	return out
}
