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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
)

func TestNewEnqueuedSendStampsDerivedID(t *testing.T) {
	self := ids.RandomNodeID()
	msg := &bep5.Msg{Y: bep5.TypeQuery, Q: bep5.MethodPing, A: &bep5.Args{}}
	dest := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1}

	send := newEnqueuedSend(self, msg, nil, dest, time.Second)
	assert.Equal(t, self.Bytes(), send.Msg.A.ID)
}

func TestNewEnqueuedSendStampsObservedAddrOnResponse(t *testing.T) {
	self := ids.RandomNodeID()
	msg := bep5.NewPong("t", self)
	dest := &net.UDPAddr{IP: net.ParseIP("5.6.7.8"), Port: 6881}

	send := newEnqueuedSend(self, msg, nil, dest, time.Second)
	assert.True(t, send.Msg.IP.IP.Equal(dest.IP))
	assert.Equal(t, dest.Port, send.Msg.IP.Port)
}

func TestNewEnqueuedSendRecordsExpectedRTTOnCall(t *testing.T) {
	self := ids.RandomNodeID()
	c, _, _ := newTestCall()
	dest := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1}

	newEnqueuedSend(self, c.Request, c, dest, 3*time.Second)
	assert.Equal(t, 3*time.Second, c.ExpectedRTT())
}

func TestNewEnqueuedSendKeepsExplicitRTTOverride(t *testing.T) {
	self := ids.RandomNodeID()
	c, _, _ := newTestCall()
	c.SetExpectedRTT(10 * time.Second)
	dest := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1}

	newEnqueuedSend(self, c.Request, c, dest, 3*time.Second)
	assert.Equal(t, 10*time.Second, c.ExpectedRTT())
}

func TestPipelineFIFOOrder(t *testing.T) {
	p := newPipeline()
	a := &EnqueuedSend{Dest: &net.UDPAddr{Port: 1}}
	b := &EnqueuedSend{Dest: &net.UDPAddr{Port: 2}}
	p.Push(a)
	p.Push(b)

	got1, ok := p.Pop()
	require.True(t, ok)
	got2, ok := p.Pop()
	require.True(t, ok)
	assert.Same(t, a, got1)
	assert.Same(t, b, got2)

	_, ok = p.Pop()
	assert.False(t, ok)
}

func TestPipelinePushFrontPrioritizes(t *testing.T) {
	p := newPipeline()
	a := &EnqueuedSend{Dest: &net.UDPAddr{Port: 1}}
	b := &EnqueuedSend{Dest: &net.UDPAddr{Port: 2}}
	p.Push(a)
	p.PushFront(b)

	got, _ := p.Pop()
	assert.Same(t, b, got)
}

func TestPipelineDrainDiscard(t *testing.T) {
	p := newPipeline()
	p.Push(&EnqueuedSend{})
	p.Push(&EnqueuedSend{})
	p.DrainDiscard()
	assert.True(t, p.Empty())
}
