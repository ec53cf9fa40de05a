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

// Package rpc is the per-socket RPC server of a Kademlia-style (BitTorrent)
// DHT node: the subsystem that owns one UDP endpoint, multiplexes outgoing
// RPCs onto it, correlates incoming datagrams with pending calls, enforces
// transaction-id uniqueness, measures round-trip latency for adaptive
// timeouts, throttles abusive sources, and infers the node's externally
// visible address from peer reports.
//
// The routing table, the wire codec and the connection manager are
// external collaborators (packages table, bep5 and reactor); this package
// only talks to them through the narrow interfaces it declares here.
// Packet handling, deferred write attempts and background discovery all
// run on a Scheduler (by default an internal bounded worker pool) rather
// than on ad hoc goroutines, so task concurrency stays bounded.
package rpc
