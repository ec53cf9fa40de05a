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
	"math"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
)

const ewmaWeight = 0.01
const ewmaInitial = 0.5

// ewma is a plain event-driven exponential moving average: avg =
// avg*(1-weight) + sample*weight, updated once per terminal call. This
// is hand-rolled rather than built on rcrowley/go-metrics' EWMA type
// because that type models a periodic, tick-driven Unix-load-average
// style decay (Update accumulates counts between Tick() calls at a fixed
// interval); a per-call weighted update has no periodic tick at
// all, so the library's primitive doesn't fit. go-metrics is still used
// below for the histogram and, in stats.go, for the meters.
type ewma struct {
	bits uint64 // atomic, math.Float64bits
}

func newEWMA(initial float64) *ewma {
	e := &ewma{}
	atomic.StoreUint64(&e.bits, math.Float64bits(initial))
	return e
}

func (e *ewma) update(sample float64) {
	for {
		old := atomic.LoadUint64(&e.bits)
		next := math.Float64frombits(old)*(1-ewmaWeight) + sample*ewmaWeight
		if atomic.CompareAndSwapUint64(&e.bits, old, math.Float64bits(next)) {
			return
		}
	}
}

func (e *ewma) value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.bits))
}

// store overwrites the average, used by reset. Updates racing a store
// land on either side of it; both orders are acceptable.
func (e *ewma) store(v float64) {
	atomic.StoreUint64(&e.bits, math.Float64bits(v))
}

// EstimatorConfig bounds the stall timeout the filter will publish.
type EstimatorConfig struct {
	MinStall     time.Duration
	MaxStall     time.Duration
	InitialStall time.Duration
}

// timeoutFilter is the RTT/reachability estimator: two loss-rate EWMAs
// (unverified vs. verified peers) plus an RTT histogram over unverified
// calls, publishing an adaptive stallTimeout.
type timeoutFilter struct {
	cfg EstimatorConfig

	unverifiedLoss *ewma
	verifiedLoss   *ewma
	rttHist        metrics.Histogram

	stallNanos int64 // atomic
}

func newTimeoutFilter(cfg EstimatorConfig) *timeoutFilter {
	f := &timeoutFilter{
		cfg:            cfg,
		unverifiedLoss: newEWMA(ewmaInitial),
		verifiedLoss:   newEWMA(ewmaInitial),
		rttHist:        metrics.NewHistogram(metrics.NewUniformSample(1024)),
	}
	atomic.StoreInt64(&f.stallNanos, int64(cfg.InitialStall))
	return f
}

// recordResult applies a terminal call's outcome to the matching EWMA,
// and, for unverified successful calls, folds the observed RTT into the
// histogram driving the adaptive stall timeout.
func (f *timeoutFilter) recordResult(verified, timedOut bool, rtt time.Duration) {
	sample := 0.0
	if timedOut {
		sample = 1.0
	}
	if verified {
		f.verifiedLoss.update(sample)
		return
	}
	f.unverifiedLoss.update(sample)
	if !timedOut {
		f.recordRTT(rtt)
	}
}

func (f *timeoutFilter) recordRTT(d time.Duration) {
	f.rttHist.Update(int64(d))
	stall := time.Duration(f.rttHist.Percentile(0.95)) * 2
	if stall < f.cfg.MinStall {
		stall = f.cfg.MinStall
	}
	if stall > f.cfg.MaxStall {
		stall = f.cfg.MaxStall
	}
	atomic.StoreInt64(&f.stallNanos, int64(stall))
}

func (f *timeoutFilter) stallTimeout() time.Duration {
	return time.Duration(atomic.LoadInt64(&f.stallNanos))
}

// UnverifiedLossRate and VerifiedLossRate expose the current EWMAs,
// mainly for DebugString and tests.
func (f *timeoutFilter) UnverifiedLossRate() float64 { return f.unverifiedLoss.value() }
func (f *timeoutFilter) VerifiedLossRate() float64   { return f.verifiedLoss.value() }

// reset is called when the socket is first opened and whenever
// reachability drops, so stale samples from a dead connectivity window
// don't contaminate the next one.
func (f *timeoutFilter) reset() {
	atomic.StoreInt64(&f.stallNanos, int64(f.cfg.InitialStall))
	f.rttHist.Clear()
	f.unverifiedLoss.store(ewmaInitial)
	f.verifiedLoss.store(ewmaInitial)
}

// TODO(rpc): consider scaling stallTimeout further by the current loss
// rate (stallTimeout *= 1+lossRate). Left out pending real traffic data
// to tune the scaling factor; RPCCall.SetExpectedRTT is the hook to
// wire it through once a factor is chosen.
