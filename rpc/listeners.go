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
	"sync"
	"sync/atomic"

	"github.com/pborman/uuid"
)

// EnqueueListener observes every call admitted via doCall.
type EnqueueListener func(c *RPCCall)

// DeclogTask is a one-shot task runnable once the call table has free
// capacity again.
type DeclogTask func()

// ListenerHandle identifies a registered EnqueueListener for later
// removal. Minting an opaque uuid rather than exposing closure identity
// lets callers deregister by value even when they registered an
// anonymous function.
type ListenerHandle string

func newHandle() ListenerHandle {
	return ListenerHandle(uuid.New())
}

// enqueueListeners is the copy-on-write observer list for onEnqueue:
// writes (Add/Remove) are rare and serialized by wmu, iteration (fire,
// on every doCall) is hot and lock-free.
type enqueueListeners struct {
	wmu sync.Mutex
	v   atomic.Value // map[ListenerHandle]EnqueueListener
}

func newEnqueueListeners() *enqueueListeners {
	l := &enqueueListeners{}
	l.v.Store(map[ListenerHandle]EnqueueListener{})
	return l
}

func (l *enqueueListeners) Add(fn EnqueueListener) ListenerHandle {
	h := newHandle()
	l.wmu.Lock()
	defer l.wmu.Unlock()
	old := l.v.Load().(map[ListenerHandle]EnqueueListener)
	next := make(map[ListenerHandle]EnqueueListener, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[h] = fn
	l.v.Store(next)
	return h
}

func (l *enqueueListeners) Remove(h ListenerHandle) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	old := l.v.Load().(map[ListenerHandle]EnqueueListener)
	if _, ok := old[h]; !ok {
		return
	}
	next := make(map[ListenerHandle]EnqueueListener, len(old)-1)
	for k, v := range old {
		if k != h {
			next[k] = v
		}
	}
	l.v.Store(next)
}

func (l *enqueueListeners) fire(c *RPCCall) {
	for _, fn := range l.v.Load().(map[ListenerHandle]EnqueueListener) {
		fn(c)
	}
}

// declogQueue is the plain FIFO of one-shot resumption tasks drained by
// doQueuedCalls while the table has free capacity.
type declogQueue struct {
	mu    sync.Mutex
	tasks []DeclogTask
}

func (q *declogQueue) Add(t DeclogTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

func (q *declogQueue) Pop() (DeclogTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}
