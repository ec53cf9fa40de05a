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

//go:build linux

package reactor

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MOACChain/MoacLib/log"
)

// EpollManager is the Linux connection manager, driving Selectables off a
// single epoll instance plus a periodic state-check tick.
type EpollManager struct {
	epfd int

	mu      sync.Mutex
	byFD    map[int]*entry
	closing chan struct{}
	tick    time.Duration
}

type entry struct {
	fd int
	s  Selectable
}

// NewEpollManager creates a Manager backed by epoll. tick controls how
// often DoStateChecks fires for every registered Selectable.
func NewEpollManager(tick time.Duration) (*EpollManager, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	m := &EpollManager{
		epfd:    fd,
		byFD:    make(map[int]*entry),
		closing: make(chan struct{}),
		tick:    tick,
	}
	go m.loop()
	go m.stateCheckLoop()
	return m, nil
}

func socketFD(s Selectable) (int, error) {
	sc, ok := s.Channel().(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("reactor: selectable's channel does not expose a raw fd")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, err
	}
	return fd, nil
}

func toEpollEvents(ops int) uint32 {
	var ev uint32
	if ops&OpRead != 0 {
		ev |= unix.EPOLLIN
	}
	if ops&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (m *EpollManager) Register(s Selectable) error {
	fd, err := socketFD(s)
	if err != nil {
		return err
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(s.CalcInterestOps()), Fd: int32(fd)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(ADD): %w", err)
	}
	m.byFD[fd] = &entry{fd: fd, s: s}
	return nil
}

func (m *EpollManager) DeRegister(s Selectable) {
	fd, err := socketFD(s)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(m.byFD, fd)
}

func (m *EpollManager) InterestOpsChanged(s Selectable) {
	fd, err := socketFD(s)
	if err != nil {
		return
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(s.CalcInterestOps()), Fd: int32(fd)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byFD[fd]; !ok {
		return
	}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		log.Debugf("reactor: epoll_ctl(MOD) failed: %v", err)
	}
}

func (m *EpollManager) loop() {
	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-m.closing:
			return
		default:
		}
		n, err := unix.EpollWait(m.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Debugf("reactor: epoll_wait error: %v", err)
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			m.mu.Lock()
			e, ok := m.byFD[fd]
			m.mu.Unlock()
			if !ok {
				continue
			}
			var ops int
			if events[i].Events&unix.EPOLLIN != 0 {
				ops |= OpRead
			}
			if events[i].Events&unix.EPOLLOUT != 0 {
				ops |= OpWrite
			}
			if ops != 0 {
				e.s.SelectionEvent(ops)
			}
		}
	}
}

func (m *EpollManager) stateCheckLoop() {
	t := time.NewTicker(m.tick)
	defer t.Stop()
	for {
		select {
		case <-m.closing:
			return
		case now := <-t.C:
			m.mu.Lock()
			entries := make([]*entry, 0, len(m.byFD))
			for _, e := range m.byFD {
				entries = append(entries, e)
			}
			m.mu.Unlock()
			for _, e := range entries {
				e.s.DoStateChecks(now)
			}
		}
	}
}

// Close shuts the manager down. Registered selectables are not
// deregistered; callers are expected to have stopped them first.
func (m *EpollManager) Close() error {
	close(m.closing)
	return syscall.Close(m.epfd)
}
