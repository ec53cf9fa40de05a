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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	p := newWorkerPool(2)
	defer p.Close()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.EqualValues(t, 20, atomic.LoadInt32(&n))
}

func TestWorkerPoolCallerRunsWhenSaturated(t *testing.T) {
	p := newWorkerPool(1)
	defer p.Close()

	started := make(chan struct{})
	block := make(chan struct{})
	defer close(block)
	p.Submit(func() {
		close(started)
		<-block
	})
	<-started

	for i := 0; i < schedulerBacklog; i++ {
		p.Submit(func() {})
	}

	// Worker blocked and queue full: the next Submit must run the task
	// synchronously on this goroutine.
	var ranInline int32
	p.Submit(func() { atomic.StoreInt32(&ranInline, 1) })
	assert.EqualValues(t, 1, atomic.LoadInt32(&ranInline))
}

func TestWorkerPoolSubmitAfterCloseIsDropped(t *testing.T) {
	p := newWorkerPool(1)
	p.Close()

	ran := false
	p.Submit(func() { ran = true })
	assert.False(t, ran)
}

func TestNewWorkerPoolClampsWorkerCount(t *testing.T) {
	p := newWorkerPool(0)
	defer p.Close()

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	<-done
}
