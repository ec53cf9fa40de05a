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

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/MOACChain/MoacLib/log"
)

// discoverNAT runs once at start(), best-effort: a successful result
// seeds getCombinedPublicAddress() before the consensus tracker has
// accumulated enough peer reports to elect anything.
func (s *RPCServer) discoverNAT(port int) {
	if addr := discoverNATPMP(port); addr != nil {
		s.natAddr.Store(addr)
		log.Debugf("rpc: nat-pmp reports external address %v", addr)
		return
	}
	if addr := discoverUPnP(port); addr != nil {
		s.natAddr.Store(addr)
		log.Debugf("rpc: upnp reports external address %v", addr)
		return
	}
	log.Debugf("rpc: no NAT-PMP or UPnP gateway found")
}

func discoverNATPMP(port int) *net.UDPAddr {
	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		return nil
	}
	client := natpmp.NewClient(gatewayIP)
	resp, err := client.GetExternalAddress()
	if err != nil {
		return nil
	}
	ip := net.IPv4(resp.ExternalIPAddress[0], resp.ExternalIPAddress[1], resp.ExternalIPAddress[2], resp.ExternalIPAddress[3])
	return &net.UDPAddr{IP: ip, Port: port}
}

func discoverUPnP(port int) *net.UDPAddr {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		return nil
	}
	extIP, err := clients[0].GetExternalIPAddress()
	if err != nil {
		return nil
	}
	ip := net.ParseIP(extIP)
	if ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: ip, Port: port}
}
