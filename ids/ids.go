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

// Package ids defines the small fixed-size identifiers shared by the
// routing table, the message codec and the RPC core: the node id handed
// out by the routing table, and the transaction id minted by the RPC
// core for each outbound call.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// NodeIDLen is the length in bytes of a Kademlia node id in this protocol
// family (same space as a BitTorrent infohash).
const NodeIDLen = 20

// TxnIDLen is the length in bytes of an RPC transaction id. 48 bits is
// the entropy budget picked for this protocol: enough that collisions
// across a few thousand in-flight calls are negligible, small enough to
// keep the wire envelope compact.
const TxnIDLen = 6

// NodeID is this node's identity within the Kademlia keyspace.
type NodeID [NodeIDLen]byte

func (id NodeID) Bytes() []byte { return id[:] }

func (id NodeID) String() string { return hex.EncodeToString(id[:]) }

func (id NodeID) IsZero() bool { return id == NodeID{} }

// NodeIDFromBytes copies b into a NodeID, requiring an exact length match.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	var id NodeID
	if len(b) != NodeIDLen {
		return id, errors.New("ids: wrong node id length")
	}
	copy(id[:], b)
	return id, nil
}

// RandomNodeID draws a node id from a cryptographic PRNG. Callers that need
// a node id tied to a specific address (BEP 42 style self-verification)
// should build on top of this rather than replace the entropy source.
func RandomNodeID() NodeID {
	var id NodeID
	if _, err := rand.Read(id[:]); err != nil {
		panic("ids: system randomness unavailable: " + err.Error())
	}
	return id
}

// TxnID is the 6-byte opaque correlator echoed by peers in responses.
// It is unique within one server's active call set, never across
// servers or across the call set's full lifetime.
type TxnID [TxnIDLen]byte

func (t TxnID) Bytes() []byte { return t[:] }

func (t TxnID) String() string { return hex.EncodeToString(t[:]) }

// TxnIDFromBytes copies b into a TxnID, requiring an exact length match.
// Returning an explicit length error (rather than silently truncating or
// zero-padding) matters here: a wrong-length transaction id on a
// response is a distinct, reportable protocol error.
func TxnIDFromBytes(b []byte) (TxnID, error) {
	var t TxnID
	if len(b) != TxnIDLen {
		return t, errors.New("ids: wrong transaction id length")
	}
	copy(t[:], b)
	return t, nil
}

// RandomTxnID draws 6 fresh bytes from a cryptographic PRNG. The PRNG is
// process-seeded, not call-seeded: crypto/rand already guarantees that,
// so there is nothing to do here beyond not caching or reusing bytes.
func RandomTxnID() TxnID {
	var t TxnID
	if _, err := rand.Read(t[:]); err != nil {
		panic("ids: system randomness unavailable: " + err.Error())
	}
	return t
}
