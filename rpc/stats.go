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
	"github.com/rcrowley/go-metrics"

	"github.com/kadnet/kadrpc/bep5"
)

// Stats is the server's stats sink: per-message-type sent/received
// meters plus byte counters, backed by a private go-metrics registry so
// Snapshot can be read without holding any of the server's own locks.
type Stats struct {
	registry metrics.Registry
}

func newStats() *Stats {
	return &Stats{registry: metrics.NewRegistry()}
}

func (s *Stats) meter(name string) metrics.Meter {
	return metrics.GetOrRegisterMeter(name, s.registry)
}

func classifyMsg(msg *bep5.Msg) string {
	switch {
	case msg.IsQuery():
		return "query." + msg.Q
	case msg.IsResponse():
		return "response"
	case msg.IsError():
		return "error"
	default:
		return "unknown"
	}
}

// RecordSent marks one sent message of msg's type.
func (s *Stats) RecordSent(msg *bep5.Msg) {
	s.meter("sent." + classifyMsg(msg)).Mark(1)
}

// RecordReceived marks one received message of msg's type.
func (s *Stats) RecordReceived(msg *bep5.Msg) {
	s.meter("received." + classifyMsg(msg)).Mark(1)
}

func (s *Stats) counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, s.registry)
}

// RecordBytesSent adds n to the running bytes-sent counter, fed by the
// socket writer on each successful send.
func (s *Stats) RecordBytesSent(n int) {
	s.counter("bytes.sent").Inc(int64(n))
}

// RecordBytesReceived adds n to the running bytes-received counter, fed
// by the read loop once a datagram clears the prefilter.
func (s *Stats) RecordBytesReceived(n int) {
	s.counter("bytes.received").Inc(int64(n))
}

// Snapshot returns the current count of every registered counter, for
// DebugString and tests.
func (s *Stats) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Meter:
			out[name] = m.Count()
		case metrics.Counter:
			out[name] = m.Count()
		}
	})
	return out
}
