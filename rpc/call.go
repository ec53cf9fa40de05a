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
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
)

// CallListener observes an RPCCall's lifecycle. Implementations must not
// block: they run synchronously on whichever goroutine completed the call
// (socket reader, writer, or an external timeout scheduler).
type CallListener interface {
	OnSent(c *RPCCall)
	OnResponse(c *RPCCall, resp *bep5.Msg)
	OnTimeout(c *RPCCall)
	OnSendFailed(c *RPCCall, err error)
	OnStall(c *RPCCall)
}

// callTableOwner is the capability a call needs back into its owning
// server: just enough to remove itself and resume queued work. Modeling
// this as a narrow interface rather than a *RPCServer back-reference lets
// a call be exercised in isolation in tests.
type callTableOwner interface {
	removeCall(c *RPCCall) bool
	doQueuedCalls()
}

// RPCCall is an outbound request awaiting a response. It is terminal
// exactly once: by a matching response, a timeout, or a send failure.
type RPCCall struct {
	Request   *bep5.Msg
	Dest      *net.UDPAddr
	Txn       ids.TxnID
	createdAt time.Time

	knownReachable bool
	owner          callTableOwner

	mu          sync.Mutex
	listeners   []CallListener
	response    *bep5.Msg
	expectedRTT int64 // atomic, nanoseconds

	removed int32 // atomic, CAS-guarded terminal flag
}

// NewCall builds a call for req destined to dest. The transaction id is
// assigned later, at dispatch time.
func NewCall(req *bep5.Msg, dest *net.UDPAddr) *RPCCall {
	return &RPCCall{Request: req, Dest: dest, createdAt: time.Now()}
}

// AddListener registers l to observe this call's terminal event. Safe to
// call from any goroutine before the call terminates; a listener added
// after termination is never invoked.
func (c *RPCCall) AddListener(l CallListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *RPCCall) snapshotListeners() []CallListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// Response returns the matched response, if any.
func (c *RPCCall) Response() *bep5.Msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// KnownReachable reports whether the destination was already a verified
// routing-table entry at dispatch time.
func (c *RPCCall) KnownReachable() bool { return c.knownReachable }

// ExpectedRTT returns the adaptive RTT bound recorded for this call at
// send time.
func (c *RPCCall) ExpectedRTT() time.Duration {
	return time.Duration(atomic.LoadInt64(&c.expectedRTT))
}

// SetExpectedRTT lets a caller override the adaptive estimate with an
// explicit value; the send pipeline leaves a pre-set value untouched.
func (c *RPCCall) SetExpectedRTT(d time.Duration) {
	atomic.StoreInt64(&c.expectedRTT, int64(d))
}

// terminated reports whether the call has already taken one of its three
// terminal paths.
func (c *RPCCall) terminated() bool {
	return atomic.LoadInt32(&c.removed) != 0
}

// MarkStall injects a stall notice: the call stays live (its eventual
// timeout still fires) but is not completed by the message that
// triggered it. Used for the source/destination mismatch case in packet
// classification.
func (c *RPCCall) MarkStall() {
	for _, l := range c.snapshotListeners() {
		l.OnStall(c)
	}
}

// finish is the single terminal path: it is idempotent (only the first
// caller wins the CAS), deregisters from the owner, fans out to
// listeners, and lets the owner resume queued work.
func (c *RPCCall) finish(notify func(l CallListener)) bool {
	if !atomic.CompareAndSwapInt32(&c.removed, 0, 1) {
		return false
	}
	if c.owner != nil {
		c.owner.removeCall(c)
	}
	for _, l := range c.snapshotListeners() {
		notify(l)
	}
	if c.owner != nil {
		c.owner.doQueuedCalls()
	}
	return true
}

// complete associates resp with the call and fires OnResponse. Returns
// false if the call had already terminated (timeout/send-failure raced
// ahead of the response).
func (c *RPCCall) complete(resp *bep5.Msg) bool {
	c.mu.Lock()
	c.response = resp
	c.mu.Unlock()
	return c.finish(func(l CallListener) { l.OnResponse(c, resp) })
}

// Timeout is invoked by the external call scheduler; the call itself
// never arms a timer.
func (c *RPCCall) Timeout() bool {
	return c.finish(func(l CallListener) { l.OnTimeout(c) })
}

// sendFailed is invoked by the socket writer on a permanent send error.
func (c *RPCCall) sendFailed(err error) bool {
	return c.finish(func(l CallListener) { l.OnSendFailed(c, err) })
}

// sent is invoked by the socket writer once the datagram is handed to
// the kernel successfully. It is not terminal.
func (c *RPCCall) sent() {
	for _, l := range c.snapshotListeners() {
		l.OnSent(c)
	}
}
