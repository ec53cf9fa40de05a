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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueListenersFireAll(t *testing.T) {
	l := newEnqueueListeners()
	var a, b int
	l.Add(func(c *RPCCall) { a++ })
	l.Add(func(c *RPCCall) { b++ })

	l.fire(nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEnqueueListenersRemove(t *testing.T) {
	l := newEnqueueListeners()
	var calls int
	h := l.Add(func(c *RPCCall) { calls++ })
	l.Remove(h)
	l.fire(nil)
	assert.Equal(t, 0, calls)
}

func TestEnqueueListenersRemoveUnknownHandleIsNoop(t *testing.T) {
	l := newEnqueueListeners()
	var calls int
	l.Add(func(c *RPCCall) { calls++ })
	l.Remove(ListenerHandle("not-registered"))
	l.fire(nil)
	assert.Equal(t, 1, calls)
}

func TestDeclogQueueFIFO(t *testing.T) {
	var q declogQueue
	var order []int
	q.Add(func() { order = append(order, 1) })
	q.Add(func() { order = append(order, 2) })

	t1, ok := q.Pop()
	assert.True(t, ok)
	t1()
	t2, ok := q.Pop()
	assert.True(t, ok)
	t2()

	assert.Equal(t, []int{1, 2}, order)

	_, ok = q.Pop()
	assert.False(t, ok)
}
