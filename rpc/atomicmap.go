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

	"github.com/kadnet/kadrpc/ids"
)

// atomicMap is a thin, typed wrapper over sync.Map for ids.TxnID ->
// *RPCCall. sync.Map's LoadOrStore gives the compare-and-set
// insert-if-absent semantics the call table needs, and LoadAndDelete
// lets the caller check the evicted value's identity and undo a
// mistaken removal; this module's go.mod targets go 1.16, predating
// sync.Map.CompareAndDelete, so that two-step form is the closest
// available equivalent.
type atomicMap struct {
	m sync.Map
}

func (a *atomicMap) LoadOrStore(k ids.TxnID, v *RPCCall) (stored bool) {
	_, loaded := a.m.LoadOrStore(k, v)
	return !loaded
}

func (a *atomicMap) Load(k ids.TxnID) (*RPCCall, bool) {
	v, ok := a.m.Load(k)
	if !ok {
		return nil, false
	}
	return v.(*RPCCall), true
}

func (a *atomicMap) LoadAndDelete(k ids.TxnID) (*RPCCall, bool) {
	v, loaded := a.m.LoadAndDelete(k)
	if !loaded {
		return nil, false
	}
	return v.(*RPCCall), true
}

// Range calls f for every entry currently in the map. f must not block.
func (a *atomicMap) Range(f func(k ids.TxnID, v *RPCCall) bool) {
	a.m.Range(func(key, value interface{}) bool {
		return f(key.(ids.TxnID), value.(*RPCCall))
	})
}
