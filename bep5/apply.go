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

import "net"

// ApplyContext is implemented by the routing table / DHT layer. It is the
// "apply" visitor the RPC core hands every correctly-classified message
// to, after its own call-table bookkeeping is done. The RPC core never
// interprets message semantics itself; it only dispatches here.
type ApplyContext interface {
	// OnIncomingMessage is called for every message, request or
	// response, before Apply. It lets the routing table update its own
	// bookkeeping (last-seen timestamps, bucket refresh) uniformly.
	OnIncomingMessage(from *net.UDPAddr, m *Msg)
}

// Apply dispatches a query to the appropriate handler on ctx and returns
// the reply to send, or an error reply. Responses and errors have no
// query semantics to apply beyond OnIncomingMessage, which the RPC core
// calls directly; Apply is only meaningful for m.IsQuery().
func (m *Msg) Apply(ctx QueryHandler) (*Msg, *Error) {
	switch m.Q {
	case MethodPing:
		return ctx.OnPing(m)
	case MethodFindNode:
		return ctx.OnFindNode(m)
	default:
		return nil, &Error{Code: ErrCodeMethodUnknown, Msg: "unknown method " + m.Q}
	}
}

// QueryHandler answers the two query methods this protocol subset
// supports. Implemented by the routing table / DHT layer.
type QueryHandler interface {
	OnPing(m *Msg) (*Msg, *Error)
	OnFindNode(m *Msg) (*Msg, *Error)
}
