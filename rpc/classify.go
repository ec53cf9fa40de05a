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
	"time"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"

	"github.com/MOACChain/MoacLib/log"
)

// strayGracePeriod is the startup window during which a response for a
// transaction id we don't recognize is treated as harmless residue of a
// prior run, not an abuse/bug signal worth replying to.
const strayGracePeriod = 120 * time.Second

// prefilter runs in the read loop before any decode allocation: length,
// leading byte and source port checks, then the optional IP blocklist
// ahead of the spam throttle.
func (s *RPCServer) prefilter(b []byte, from *net.UDPAddr) bool {
	if len(b) < 10 {
		return false
	}
	if b[0] != 'd' {
		return false
	}
	if from.Port == 0 {
		return false
	}
	if s.cfg.IPBlocklist.Contains(from.IP) {
		return false
	}
	if s.throttle.IsSpam(from.IP) {
		return false
	}
	return true
}

// handlePacket is the worker-pool entry point for a datagram that
// already passed the prefilter.
func (s *RPCServer) handlePacket(from *net.UDPAddr, raw []byte) {
	msg, err := bep5.Decode(raw)
	if err != nil {
		s.SendMessage(bep5.NewProtocolError(err.Error()), from)
		return
	}
	s.stats.RecordReceived(msg)
	switch {
	case msg.IsQuery():
		s.handleQuery(from, msg)
	case msg.IsResponse():
		s.handleResponse(from, msg)
	case msg.IsError():
		s.handleMessage(from, msg)
	default:
		s.SendMessage(bep5.NewServerError(msg.T, "unknown message type"), from)
	}
}

func (s *RPCServer) handleQuery(from *net.UDPAddr, msg *bep5.Msg) {
	s.handleMessage(from, msg)
	reply, rpcErr := msg.Apply(s.table)
	if rpcErr != nil {
		s.SendMessage(&bep5.Msg{T: msg.T, Y: bep5.TypeError, E: rpcErr}, from)
		return
	}
	if reply != nil {
		s.SendMessage(reply, from)
	}
}

func (s *RPCServer) handleResponse(from *net.UDPAddr, msg *bep5.Msg) {
	txn, err := ids.TxnIDFromBytes([]byte(msg.T))
	if err != nil {
		s.SendMessage(bep5.NewServerError(msg.T, "invalid transaction id length"), from)
		return
	}
	call, ok := s.calls.find(txn)
	if !ok {
		if _, dup := s.retired.Get(txn); dup {
			log.Debugf("rpc: duplicate response for retired txn %x from %v", txn, from)
			return
		}
		if time.Since(s.startTime) > strayGracePeriod {
			s.replyStray(from, msg.T)
		}
		return
	}
	if !addrEqual(call.Dest, from) {
		log.Errorf("rpc: response source %v does not match call destination %v for txn %x", from, call.Dest, txn)
		call.MarkStall()
		return
	}
	call.complete(msg)
	s.handleMessage(from, msg)
}

// replyStray de-duplicates the "no matching transaction" error reply so
// a burst of strays from one flaky peer doesn't spam the wire more than
// once per idle window.
func (s *RPCServer) replyStray(from *net.UDPAddr, t string) {
	key := from.String() + "/" + t
	if _, found := s.strayDedup.Get(key); found {
		return
	}
	s.strayDedup.SetDefault(key, struct{}{})
	s.SendMessage(bep5.NewServerError(t, "no matching transaction"), from)
}

// handleMessage runs for every correctly-classified message, request or
// response: feeds the consensus tracker from any observed-address hint,
// then notifies the routing table.
func (s *RPCServer) handleMessage(from *net.UDPAddr, msg *bep5.Msg) {
	if msg.IsResponse() && msg.IP != nil {
		s.consensus.Observe(from.IP, msg.IP.UDPAddr())
	}
	s.table.OnIncomingMessage(from, msg)
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
