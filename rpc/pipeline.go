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
	"container/list"
	"net"
	"sync"
	"time"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
)

// EnqueuedSend pairs an outbound message with its destination and, if
// this is a correlated call rather than a fire-and-forget send, the
// owning RPCCall.
type EnqueuedSend struct {
	Msg  *bep5.Msg
	Dest *net.UDPAddr
	Call *RPCCall
}

// newEnqueuedSend builds an EnqueuedSend, applying the construction-time
// fixups the data model requires: stamping the server's derived id onto
// the message, stamping the destination into any response's "ip"
// (observed-address) field, and recording the current stall timeout as
// the owning call's expected RTT unless the caller already set an
// explicit override.
func newEnqueuedSend(self ids.NodeID, msg *bep5.Msg, call *RPCCall, dest *net.UDPAddr, stallTimeout time.Duration) *EnqueuedSend {
	if msg.A != nil && len(msg.A.ID) == 0 {
		msg.A.ID = self.Bytes()
	}
	if msg.R != nil && len(msg.R.ID) == 0 {
		msg.R.ID = self.Bytes()
	}
	if msg.IsResponse() {
		msg.WithObservedAddr(dest)
	}
	if call != nil && call.ExpectedRTT() == 0 {
		call.SetExpectedRTT(stallTimeout)
	}
	return &EnqueuedSend{Msg: msg, Dest: dest, Call: call}
}

// pipeline is the FIFO of outbound sends, consumed by at most one writer
// at a time (enforced by the socket handler's writer-state CAS, not by
// this type). A mutex-guarded container/list is enough here; true
// lock-free MPSC buys nothing when the consumer side is already
// serialized.
type pipeline struct {
	mu sync.Mutex
	l  *list.List
}

func newPipeline() *pipeline {
	return &pipeline{l: list.New()}
}

func (p *pipeline) Push(s *EnqueuedSend) {
	p.mu.Lock()
	p.l.PushBack(s)
	p.mu.Unlock()
}

// PushFront re-queues a send that hit a transient failure, giving it
// retry-first treatment. Tail re-queueing would also be sound, since
// cross-peer order is not protocol-guaranteed, but head re-queueing
// keeps a stalled send from starving behind everything queued after it.
func (p *pipeline) PushFront(s *EnqueuedSend) {
	p.mu.Lock()
	p.l.PushFront(s)
	p.mu.Unlock()
}

func (p *pipeline) Pop() (*EnqueuedSend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.l.Front()
	if e == nil {
		return nil, false
	}
	p.l.Remove(e)
	return e.Value.(*EnqueuedSend), true
}

func (p *pipeline) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.l.Len() == 0
}

// DrainDiscard empties the pipeline without sending, used by stop().
func (p *pipeline) DrainDiscard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.l.Init()
}
