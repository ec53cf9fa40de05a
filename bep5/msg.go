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

// Package bep5 is the message-type layer and wire codec for the BitTorrent
// DHT / Kademlia (BEP-5 family) protocol: bencoded dictionaries carrying a
// transaction id, a message type, and either a query, a response or an
// error. It is kept intentionally thin: enough to let the RPC core
// exercise real query/response/error traffic without taking on lookup,
// peer storage or token semantics.
package bep5

import (
	"fmt"
	"net"

	"github.com/anacrolix/torrent/bencode"

	"github.com/kadnet/kadrpc/ids"
)

// Message types ("y" field).
const (
	TypeQuery    = "q"
	TypeResponse = "r"
	TypeError    = "e"
)

// Query methods ("q" field). Only the two methods the RPC core needs
// are modeled; get_peers/announce_peer and their token machinery are
// out of scope.
const (
	MethodPing     = "ping"
	MethodFindNode = "find_node"
)

// Error codes, per BEP-5 §"Errors".
const (
	ErrCodeGeneric         = 201
	ErrCodeServerError     = 202
	ErrCodeProtocolError   = 203
	ErrCodeMethodUnknown   = 204
)

// Msg is a decoded KRPC message. Only one of Q+A, R, E is populated,
// matching Y.
type Msg struct {
	T  string       `bencode:"t"`
	Y  string       `bencode:"y"`
	Q  string       `bencode:"q,omitempty"`
	A  *Args        `bencode:"a,omitempty"`
	R  *Return      `bencode:"r,omitempty"`
	E  *Error       `bencode:"e,omitempty"`
	IP *CompactAddr `bencode:"ip,omitempty"`
	V  string       `bencode:"v,omitempty"`
}

// Args is the "a" dictionary of a query.
type Args struct {
	ID     []byte `bencode:"id"`
	Target []byte `bencode:"target,omitempty"`
}

// Return is the "r" dictionary of a response.
type Return struct {
	ID    []byte        `bencode:"id"`
	Nodes CompactNodes  `bencode:"nodes,omitempty"`
}

// Error is the "e" list of a BEP-5 error message: [code, message].
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("bep5 error %d: %s", e.Code, e.Msg) }

func (e Error) MarshalBencode() ([]byte, error) {
	return bencode.Marshal([]interface{}{e.Code, e.Msg})
}

func (e *Error) UnmarshalBencode(b []byte) error {
	var tuple []interface{}
	if err := bencode.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("bep5: error tuple has %d elements, want 2", len(tuple))
	}
	switch code := tuple[0].(type) {
	case int64:
		e.Code = int(code)
	case int:
		e.Code = code
	default:
		return fmt.Errorf("bep5: error code has unexpected type %T", tuple[0])
	}
	msg, ok := tuple[1].(string)
	if !ok {
		return fmt.Errorf("bep5: error message has unexpected type %T", tuple[1])
	}
	e.Msg = msg
	return nil
}

// zeroTxnLen is the width of the all-zero transaction id carried by a
// protocol-error reply. The peer's own id never got parsed, so there is
// nothing to echo; 4 bytes is the conventional width for this placeholder.
const zeroTxnLen = 4

// NewProtocolError builds the message sent back in reply to a bencode
// decode failure: zero transaction id, code ProtocolError.
func NewProtocolError(detail string) *Msg {
	return &Msg{
		T: string(make([]byte, zeroTxnLen)),
		Y: TypeError,
		E: &Error{Code: ErrCodeProtocolError, Msg: detail},
	}
}

// NewServerError builds the message sent back when a transaction id is
// well-formed but otherwise can't be serviced (wrong length, or no
// matching call past the startup grace window).
func NewServerError(t string, detail string) *Msg {
	return &Msg{
		T: t,
		Y: TypeError,
		E: &Error{Code: ErrCodeServerError, Msg: detail},
	}
}

// Encode bencodes m.
func Encode(m *Msg) ([]byte, error) {
	return bencode.Marshal(m)
}

// Decode bencode-decodes a KRPC message. Callers are expected to have
// already run the cheap prefilter (length, leading 'd', source port) in
// front of this, since full decode allocates and walks the whole
// dictionary.
func Decode(b []byte) (*Msg, error) {
	var m Msg
	if err := bencode.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewPing builds a ping query carrying id as the sender's node id.
func NewPing(t string, id ids.NodeID) *Msg {
	return &Msg{T: t, Y: TypeQuery, Q: MethodPing, A: &Args{ID: id.Bytes()}}
}

// NewFindNode builds a find_node query for target, carrying id as the
// sender's node id.
func NewFindNode(t string, id ids.NodeID, target ids.NodeID) *Msg {
	return &Msg{T: t, Y: TypeQuery, Q: MethodFindNode, A: &Args{ID: id.Bytes(), Target: target.Bytes()}}
}

// NewPong builds the response to a ping. The "ip" observed-address field
// (BEP 42 style "you appear as" hint) is left unset here; the send
// pipeline fills it in from the destination.
func NewPong(t string, id ids.NodeID) *Msg {
	return &Msg{T: t, Y: TypeResponse, R: &Return{ID: id.Bytes()}}
}

// NewFindNodeResponse builds the response to a find_node, carrying the
// closest known nodes.
func NewFindNodeResponse(t string, id ids.NodeID, nodes []CompactNode) *Msg {
	return &Msg{T: t, Y: TypeResponse, R: &Return{ID: id.Bytes(), Nodes: nodes}}
}

// WithObservedAddr copies addr into the message's "ip" field. This is
// used by the send pipeline so every ping/find_node response tells the
// querier what address it appears to be sending from, feeding the
// consensus external-address tracker on the other end.
func (m *Msg) WithObservedAddr(addr *net.UDPAddr) *Msg {
	m.IP = &CompactAddr{IP: addr.IP, Port: addr.Port}
	return m
}

// IsQuery, IsResponse, IsError classify a decoded message by its "y"
// field.
func (m *Msg) IsQuery() bool    { return m.Y == TypeQuery }
func (m *Msg) IsResponse() bool { return m.Y == TypeResponse }
func (m *Msg) IsError() bool    { return m.Y == TypeError }

// SenderID returns the node id carried by a query's args or a response's
// return value, if present.
func (m *Msg) SenderID() []byte {
	if m.A != nil {
		return m.A.ID
	}
	if m.R != nil {
		return m.R.ID
	}
	return nil
}
