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
	"time"

	"github.com/kadnet/kadrpc/bep5"

	"github.com/MOACChain/MoacLib/log"
)

// serverCallListener is the server's own internal listener, installed
// on every dispatched call: it feeds the timeout estimator and
// the routing table's timeout bookkeeping, and is kept as a narrow
// CallListener rather than giving RPCCall a *RPCServer field directly,
// per the design note on listener back-references.
type serverCallListener struct {
	server *RPCServer
}

func (l *serverCallListener) OnSent(c *RPCCall) {}

func (l *serverCallListener) OnResponse(c *RPCCall, resp *bep5.Msg) {
	l.server.estimator.recordResult(c.knownReachable, false, time.Since(c.createdAt))
}

func (l *serverCallListener) OnTimeout(c *RPCCall) {
	l.server.estimator.recordResult(c.knownReachable, true, 0)
	l.server.table.Timeout(c.Dest)
}

func (l *serverCallListener) OnSendFailed(c *RPCCall, err error) {
	log.Debugf("rpc: send failed for call %x to %v: %v", c.Txn.Bytes(), c.Dest, err)
}

func (l *serverCallListener) OnStall(c *RPCCall) {
	log.Debugf("rpc: call %x to %v marked stalled (source/destination mismatch)", c.Txn.Bytes(), c.Dest)
}
