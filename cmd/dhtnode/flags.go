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

package main

import (
	"gopkg.in/urfave/cli.v1"

	"github.com/kadnet/kadrpc/dhtcfg"
)

// Flags are flat package-level vars, trimmed to what a single DHT RPC
// node needs.
var (
	ListenAddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "UDP listen address (ip:port)",
		Value: dhtcfg.DefaultConfig().ListenAddr,
	}
	VerbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "sets the verbosity level",
		Value: dhtcfg.DefaultConfig().Verbosity,
	}
	MaxActiveCallsFlag = cli.IntFlag{
		Name:  "maxcalls",
		Usage: "maximum number of concurrently in-flight RPC calls",
		Value: dhtcfg.DefaultConfig().MaxActiveCalls,
	}
	MaxPacketSizeFlag = cli.IntFlag{
		Name:  "maxpacket",
		Usage: "maximum UDP datagram size this node will send or accept",
		Value: dhtcfg.DefaultConfig().MaxPacketSize,
	}
	ThrottleLimitFlag = cli.IntFlag{
		Name:  "throttlelimit",
		Usage: "datagrams per idle window before a source is throttled",
		Value: dhtcfg.DefaultConfig().ThrottleLimit,
	}
	NetRestrictFlag = cli.StringFlag{
		Name:  "netrestrict",
		Usage: "restrict routing table entries to the given CIDR list",
	}
	IPBlocklistFlag = cli.StringFlag{
		Name:  "blocklist",
		Usage: "reject inbound datagrams from the given CIDR list",
	}
	BootstrapFlag = cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "pre-resolved bootstrap node address (ip:port), repeatable",
	}
)

func configFromContext(ctx *cli.Context) dhtcfg.Config {
	cfg := dhtcfg.DefaultConfig()
	if ctx.IsSet(ListenAddrFlag.Name) {
		cfg.ListenAddr = ctx.String(ListenAddrFlag.Name)
	}
	if ctx.IsSet(VerbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(VerbosityFlag.Name)
	}
	if ctx.IsSet(MaxActiveCallsFlag.Name) {
		cfg.MaxActiveCalls = ctx.Int(MaxActiveCallsFlag.Name)
	}
	if ctx.IsSet(MaxPacketSizeFlag.Name) {
		cfg.MaxPacketSize = ctx.Int(MaxPacketSizeFlag.Name)
	}
	if ctx.IsSet(ThrottleLimitFlag.Name) {
		cfg.ThrottleLimit = ctx.Int(ThrottleLimitFlag.Name)
	}
	cfg.NetRestrict = ctx.String(NetRestrictFlag.Name)
	cfg.IPBlocklist = ctx.String(IPBlocklistFlag.Name)
	cfg.Bootstrap = ctx.StringSlice(BootstrapFlag.Name)
	return cfg
}
