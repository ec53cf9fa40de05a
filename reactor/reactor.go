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

// Package reactor is the connection manager: a selector/reactor that
// dispatches readiness events to registered sockets, so the RPC core's
// readiness-driven write state machine has something real underneath it
// on Linux (via epoll) and a portable fallback elsewhere.
package reactor

import (
	"net"
	"time"
)

// Interest op bits, mirrored from the classic NIO selector vocabulary the
// core's write state machine is specified against.
const (
	OpRead  = 1 << iota // the socket wants to be told when a datagram is readable
	OpWrite             // the socket wants to be told when it can write without blocking
)

// Selectable is implemented by a socket handler that wants readiness
// notifications from a Manager.
type Selectable interface {
	// Channel returns the underlying packet connection.
	Channel() net.PacketConn
	// CalcInterestOps returns the op bits the selectable currently
	// wants notifications for.
	CalcInterestOps() int
	// SelectionEvent is called when ops (a subset of CalcInterestOps's
	// last value) became ready.
	SelectionEvent(ops int)
	// DoStateChecks is invoked periodically so time-driven bookkeeping
	// (reachability ticks, timeout sweeps) happens on the reactor's own
	// cadence rather than requiring a second timer goroutine per
	// selectable.
	DoStateChecks(now time.Time)
}

// Manager is the collaborator interface the RPC core's socket handler
// consumes: register/deregister a selectable, and tell the manager its
// interest ops changed (e.g. the write pipeline just became non-empty
// and the selectable now wants OpWrite).
type Manager interface {
	Register(s Selectable) error
	DeRegister(s Selectable)
	InterestOpsChanged(s Selectable)
}
