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

// Package dhtcfg is the configuration and logging setup shared by the
// dhtnode command: parsed bind address, tunables handed to
// rpc.ServerConfig, and the verbosity wiring into MoacLib/log. It is a
// small, flat config struct built directly off CLI flags rather than a
// layered config file format.
package dhtcfg

import (
	"fmt"
	"net"
	"time"

	"github.com/kadnet/kadrpc/netutil"
	"github.com/kadnet/kadrpc/rpc"

	"github.com/MOACChain/MoacLib/log"
)

// Config is the flat set of knobs a dhtnode process needs. Bootstrap
// holds pre-resolved addresses only; hostname resolution is left to the
// operator.
type Config struct {
	ListenAddr     string
	Verbosity      int
	MaxActiveCalls int
	MaxPacketSize  int
	ThrottleLimit  int
	NetRestrict    string
	IPBlocklist    string
	Bootstrap      []string
}

// DefaultConfig mirrors rpc.DefaultServerConfig's numbers so the CLI and
// the library default to the same behavior.
func DefaultConfig() Config {
	d := rpc.DefaultServerConfig()
	return Config{
		ListenAddr:     "0.0.0.0:6881",
		Verbosity:      3,
		MaxActiveCalls: d.MaxActiveCalls,
		MaxPacketSize:  d.MaxPacketSize,
		ThrottleLimit:  d.ThrottleLimit,
	}
}

// ApplyLogging records the requested verbosity. MoacLib/log's own level
// plumbing lives outside this retrieval pack; dhtnode logs the request
// at startup rather than guessing at an unverified setter.
func ApplyLogging(verbosity int) {
	log.Infof("dhtcfg: verbosity requested: %d", verbosity)
}

// ResolveListenAddr parses ListenAddr into a *net.UDPAddr.
func (c Config) ResolveListenAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", c.ListenAddr)
}

// ServerConfig builds an rpc.ServerConfig from the flat CLI config,
// parsing the optional IP-blocklist CIDR list. The netrestrict list is
// parsed separately, by NetRestrictList.
func (c Config) ServerConfig() (rpc.ServerConfig, error) {
	cfg := rpc.DefaultServerConfig()
	cfg.MaxActiveCalls = c.MaxActiveCalls
	cfg.MaxPacketSize = c.MaxPacketSize
	cfg.ThrottleLimit = c.ThrottleLimit
	if c.IPBlocklist != "" {
		nl, err := netutil.ParseNetlist(c.IPBlocklist)
		if err != nil {
			return cfg, fmt.Errorf("dhtcfg: parsing ip blocklist: %w", err)
		}
		cfg.IPBlocklist = nl
	}
	return cfg, nil
}

// NetRestrictList parses the optional --netrestrict CIDR list applied to
// the routing table (table.New's netrestrict argument).
func (c Config) NetRestrictList() (*netutil.Netlist, error) {
	if c.NetRestrict == "" {
		return nil, nil
	}
	return netutil.ParseNetlist(c.NetRestrict)
}

// ResolveBootstrap resolves the pre-supplied bootstrap addresses.
func (c Config) ResolveBootstrap() ([]*net.UDPAddr, error) {
	out := make([]*net.UDPAddr, 0, len(c.Bootstrap))
	for _, s := range c.Bootstrap {
		addr, err := net.ResolveUDPAddr("udp", s)
		if err != nil {
			return nil, fmt.Errorf("dhtcfg: resolving bootstrap address %q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// ReactorTick is the polling/state-check cadence handed to
// reactor.NewEpollManager.
func ReactorTick() time.Duration { return 250 * time.Millisecond }
