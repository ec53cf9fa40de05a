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
	"sync/atomic"
	"time"
)

// ReachabilityTimeout is the quiet period after which, with no new
// inbound datagrams, the server considers itself unreachable.
const ReachabilityTimeout = 2 * time.Minute

// reachability is the watchdog driven by an external periodic tick
// (RPCServer.onReactorTick). It tracks the last-observed numReceived
// value and the timestamp it last changed.
type reachability struct {
	reachable  int32 // atomic bool
	lastCount  int64 // atomic
	lastChange int64 // atomic, UnixNano
}

func newReachability() *reachability {
	r := &reachability{reachable: 1}
	atomic.StoreInt64(&r.lastChange, time.Now().UnixNano())
	return r
}

// check advances the watchdog. onUnreachable fires at most once per
// reachable-to-unreachable transition.
func (r *reachability) check(now time.Time, numReceived int64, onUnreachable func()) {
	if numReceived != atomic.LoadInt64(&r.lastCount) {
		atomic.StoreInt64(&r.lastCount, numReceived)
		atomic.StoreInt64(&r.lastChange, now.UnixNano())
		atomic.StoreInt32(&r.reachable, 1)
		return
	}
	lastChange := time.Unix(0, atomic.LoadInt64(&r.lastChange))
	if now.Sub(lastChange) > ReachabilityTimeout {
		if atomic.SwapInt32(&r.reachable, 0) != 0 {
			onUnreachable()
		}
	}
}

func (r *reachability) IsReachable() bool {
	return atomic.LoadInt32(&r.reachable) != 0
}
