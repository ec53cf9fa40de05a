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

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
)

func TestStatsRecordSentAndReceivedByType(t *testing.T) {
	s := newStats()
	ping := bep5.NewPing("t", ids.RandomNodeID())
	pong := bep5.NewPong("t", ids.RandomNodeID())

	s.RecordSent(ping)
	s.RecordReceived(pong)
	s.RecordReceived(pong)

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap["sent.query.ping"])
	assert.EqualValues(t, 2, snap["received.response"])
}

func TestStatsRecordBytesSentAndReceived(t *testing.T) {
	s := newStats()

	s.RecordBytesSent(20)
	s.RecordBytesSent(6)
	s.RecordBytesReceived(64)

	snap := s.Snapshot()
	assert.EqualValues(t, 26, snap["bytes.sent"])
	assert.EqualValues(t, 64, snap["bytes.received"])
}

func TestClassifyMsgCoversAllTypes(t *testing.T) {
	assert.Equal(t, "query.ping", classifyMsg(bep5.NewPing("t", ids.RandomNodeID())))
	assert.Equal(t, "response", classifyMsg(bep5.NewPong("t", ids.RandomNodeID())))
	assert.Equal(t, "error", classifyMsg(bep5.NewServerError("t", "x")))
}
