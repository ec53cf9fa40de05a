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

//go:build !linux

package reactor

import (
	"sync"
	"time"
)

// TickerManager is the portable fallback connection manager for GOOS
// other than linux, where no epoll is available. It treats every
// registered selectable's outstanding interest ops as immediately ready
// on each tick: read/write readiness latency is bounded by the tick
// interval instead of the kernel's own notification latency. This is a
// correctness-preserving, throughput-reducing substitute, acceptable
// because the socket handler's own read/write calls are already
// non-blocking (EAGAIN-tolerant) by contract.
type TickerManager struct {
	mu      sync.Mutex
	entries map[Selectable]struct{}
	closing chan struct{}
	tick    time.Duration
}

// NewEpollManager keeps the same constructor name as the Linux build so
// callers don't need a build-tag switch of their own.
func NewEpollManager(tick time.Duration) (*TickerManager, error) {
	m := &TickerManager{
		entries: make(map[Selectable]struct{}),
		closing: make(chan struct{}),
		tick:    tick,
	}
	go m.loop()
	return m, nil
}

func (m *TickerManager) Register(s Selectable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s] = struct{}{}
	return nil
}

func (m *TickerManager) DeRegister(s Selectable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, s)
}

func (m *TickerManager) InterestOpsChanged(s Selectable) {
	// Nothing to propagate: every tick re-evaluates CalcInterestOps().
}

func (m *TickerManager) loop() {
	t := time.NewTicker(m.tick)
	defer t.Stop()
	for {
		select {
		case <-m.closing:
			return
		case now := <-t.C:
			m.mu.Lock()
			entries := make([]Selectable, 0, len(m.entries))
			for s := range m.entries {
				entries = append(entries, s)
			}
			m.mu.Unlock()
			for _, s := range entries {
				ops := s.CalcInterestOps()
				if ops != 0 {
					s.SelectionEvent(ops)
				}
				s.DoStateChecks(now)
			}
		}
	}
}

func (m *TickerManager) Close() error {
	close(m.closing)
	return nil
}
