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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReachabilityStartsTrue(t *testing.T) {
	r := newReachability()
	assert.True(t, r.IsReachable())
}

func TestReachabilityStaysTrueWhileCountAdvances(t *testing.T) {
	r := newReachability()
	now := time.Now()
	var fired bool
	r.check(now, 1, func() { fired = true })
	r.check(now.Add(time.Minute), 2, func() { fired = true })
	assert.True(t, r.IsReachable())
	assert.False(t, fired)
}

func TestReachabilityTripsAfterTimeoutWithNoNewDatagrams(t *testing.T) {
	r := newReachability()
	now := time.Now()
	r.check(now, 1, func() {})

	var fired bool
	r.check(now.Add(ReachabilityTimeout+time.Second), 1, func() { fired = true })

	assert.False(t, r.IsReachable())
	assert.True(t, fired)
}

func TestReachabilityOnUnreachableFiresOnlyOnce(t *testing.T) {
	r := newReachability()
	now := time.Now()
	r.check(now, 1, func() {})

	count := 0
	cb := func() { count++ }
	r.check(now.Add(ReachabilityTimeout+time.Second), 1, cb)
	r.check(now.Add(ReachabilityTimeout+2*time.Second), 1, cb)
	assert.Equal(t, 1, count)
}
