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
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/netutil"
	"github.com/kadnet/kadrpc/reactor"

	"github.com/MOACChain/MoacLib/log"
)

type writerState int32

const (
	stateNotInitialized writerState = iota
	stateIdle
	stateWriting
	stateAwaitingReadiness
	stateClosed
)

// socketHandler is the non-blocking datagram endpoint: a
// readiness-driven read loop and a single-writer write state machine,
// implementing reactor.Selectable so the connection manager can drive
// it.
type socketHandler struct {
	server *RPCServer
	conn   *net.UDPConn
	mgr    reactor.Manager
	pipe   *pipeline

	maxPacketSize int
	state         int32 // atomic writerState

	pcReader packetConnReader // nil unless wildcard-bound and the platform supports dst control messages
}

func newSocketHandler(server *RPCServer, conn *net.UDPConn, mgr reactor.Manager, pipe *pipeline, maxPacketSize int) *socketHandler {
	h := &socketHandler{server: server, conn: conn, mgr: mgr, pipe: pipe, maxPacketSize: maxPacketSize}
	atomic.StoreInt32(&h.state, int32(stateIdle))
	if laddr, ok := conn.LocalAddr().(*net.UDPAddr); ok && isWildcardBind(laddr) {
		h.pcReader = newPacketConnReader(conn, laddr.IP != nil && laddr.IP.To4() == nil)
	}
	return h
}

// Channel implements reactor.Selectable.
func (h *socketHandler) Channel() net.PacketConn { return h.conn }

// CalcInterestOps implements reactor.Selectable: always interested in
// reads; interested in writes only while awaiting socket-buffer
// readiness.
func (h *socketHandler) CalcInterestOps() int {
	ops := reactor.OpRead
	if writerState(atomic.LoadInt32(&h.state)) == stateAwaitingReadiness {
		ops |= reactor.OpWrite
	}
	return ops
}

// SelectionEvent implements reactor.Selectable.
func (h *socketHandler) SelectionEvent(ops int) {
	if ops&reactor.OpRead != 0 {
		h.readEvent()
	}
	if ops&reactor.OpWrite != 0 {
		if atomic.CompareAndSwapInt32(&h.state, int32(stateAwaitingReadiness), int32(stateIdle)) {
			h.mgr.InterestOpsChanged(h)
			h.schedule()
		}
	}
}

// DoStateChecks implements reactor.Selectable: piggy-backs the call
// timeout sweep and reachability watchdog tick onto the reactor's own
// cadence.
func (h *socketHandler) DoStateChecks(now time.Time) {
	h.server.onReactorTick(now)
}

func (h *socketHandler) close() {
	atomic.StoreInt32(&h.state, int32(stateClosed))
	h.conn.Close()
}

// schedule hands a writeEvent attempt to the shared task executor. Safe
// to call whenever the pipeline may have become non-empty; writeEvent's
// own CAS makes this a no-op if another goroutine already owns the
// WRITING state.
func (h *socketHandler) schedule() {
	h.server.sched.Submit(h.writeEvent)
}

func isTransientSendError(err error) bool {
	if err == nil {
		return false
	}
	var errno interface{ Temporary() bool }
	if errors.As(err, &errno) && errno.Temporary() {
		return true
	}
	return strings.Contains(err.Error(), "no buffer space available")
}

// writeEvent drains the pipeline under the writer-state CAS: at most
// one goroutine is inside the WRITING region at any instant.
func (h *socketHandler) writeEvent() {
	if !atomic.CompareAndSwapInt32(&h.state, int32(stateIdle), int32(stateWriting)) {
		return
	}
	for {
		send, ok := h.pipe.Pop()
		if !ok {
			break
		}
		encoded, err := bep5.Encode(send.Msg)
		if err != nil {
			log.Debugf("rpc: dropping unencodable send to %v: %v", send.Dest, err)
			if send.Call != nil {
				send.Call.sendFailed(err)
			}
			continue
		}
		if len(encoded) > h.maxPacketSize {
			log.Debugf("rpc: dropping oversized send (%d bytes) to %v", len(encoded), send.Dest)
			if send.Call != nil {
				send.Call.sendFailed(errors.New("rpc: encoded message exceeds max packet size"))
			}
			continue
		}
		n, err := h.conn.WriteToUDP(encoded, send.Dest)
		if err != nil || n == 0 {
			if err == nil || isTransientSendError(err) {
				h.pipe.PushFront(send)
				atomic.StoreInt32(&h.state, int32(stateAwaitingReadiness))
				h.mgr.InterestOpsChanged(h)
				return
			}
			log.Debugf("rpc: send to %v failed: %v", send.Dest, err)
			if send.Call != nil {
				send.Call.sendFailed(err)
			}
			continue
		}
		if send.Call != nil {
			send.Call.sent()
		}
		atomic.AddInt64(&h.server.numSent, 1)
		h.server.stats.RecordSent(send.Msg)
		h.server.stats.RecordBytesSent(n)
	}
	if atomic.CompareAndSwapInt32(&h.state, int32(stateWriting), int32(stateIdle)) {
		if !h.pipe.Empty() {
			h.schedule()
		}
	}
}

// read performs one recv, preferring the control-message-aware path
// when the socket is wildcard-bound so the caller can learn which local
// address the datagram actually arrived on.
func (h *socketHandler) read(buf []byte) (from *net.UDPAddr, dst net.IP, n int, err error) {
	if h.pcReader != nil {
		var src net.Addr
		n, src, dst, err = h.pcReader.ReadFrom(buf)
		if err != nil {
			return nil, nil, n, err
		}
		from, _ = src.(*net.UDPAddr)
		return from, dst, n, nil
	}
	n, from, err = h.conn.ReadFromUDP(buf)
	return from, nil, n, err
}

// readDrainDeadline bounds each recv inside readEvent. There is no
// non-blocking "peek" in net.UDPConn, so a near-immediate deadline is
// the idiomatic Go substitute for readiness polling: a datagram that is
// already queued returns instantly, and a recv that would block turns
// into a timeout, ending the drain. The deadline sits slightly in the
// future rather than at now exactly, both so a queued datagram can't be
// short-circuited by an already-expired deadline and so the ticker-driven
// fallback manager (which fires readEvent with no readiness guarantee)
// never parks its loop on a quiet socket.
const readDrainDeadline = time.Millisecond

// readEvent drains every datagram currently available, bounding the
// reactor goroutine's stay by readDrainDeadline per recv.
func (h *socketHandler) readEvent() {
	buf := make([]byte, h.maxPacketSize)
	for {
		h.conn.SetReadDeadline(time.Now().Add(readDrainDeadline))
		from, dst, n, err := h.read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			if netutil.IsTemporaryError(err) {
				continue
			}
			return
		}
		if dst != nil {
			h.server.recordLocalDst(dst)
		}
		if !h.server.prefilter(buf[:n], from) {
			continue
		}
		atomic.AddInt64(&h.server.numReceived, 1)
		h.server.stats.RecordBytesReceived(n)
		payload := make([]byte, n)
		copy(payload, buf[:n])
		src := from
		h.server.sched.Submit(func() { h.server.handlePacket(src, payload) })
	}
}
