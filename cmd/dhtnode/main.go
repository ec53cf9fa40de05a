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

// Command dhtnode runs a standalone DHT RPC node: it binds a UDP socket,
// wires it to a routing table and connection manager, and serves queries
// until terminated.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/kadnet/kadrpc/dhtcfg"
	"github.com/kadnet/kadrpc/reactor"
	"github.com/kadnet/kadrpc/rpc"
	"github.com/kadnet/kadrpc/table"

	"github.com/MOACChain/MoacLib/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "dhtnode"
	app.Usage = "run a standalone Kademlia/BitTorrent DHT RPC node"
	app.Flags = []cli.Flag{
		ListenAddrFlag,
		VerbosityFlag,
		MaxActiveCallsFlag,
		MaxPacketSizeFlag,
		ThrottleLimitFlag,
		NetRestrictFlag,
		IPBlocklistFlag,
		BootstrapFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := configFromContext(ctx)
	dhtcfg.ApplyLogging(cfg.Verbosity)

	laddr, err := cfg.ResolveListenAddr()
	if err != nil {
		return fmt.Errorf("dhtnode: %w", err)
	}
	netrestrict, err := cfg.NetRestrictList()
	if err != nil {
		return fmt.Errorf("dhtnode: %w", err)
	}
	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		return fmt.Errorf("dhtnode: %w", err)
	}
	bootstrap, err := cfg.ResolveBootstrap()
	if err != nil {
		return fmt.Errorf("dhtnode: %w", err)
	}

	rt := table.New(netrestrict)

	mgr, err := reactor.NewEpollManager(dhtcfg.ReactorTick())
	if err != nil {
		return fmt.Errorf("dhtnode: starting reactor: %w", err)
	}

	srv := rpc.NewServer(laddr, rt, mgr, serverCfg)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("dhtnode: starting server: %w", err)
	}
	log.Infof("dhtnode: %s", srv.DebugString())

	for _, addr := range bootstrap {
		srv.Ping(addr)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	log.Infof("dhtnode: shutting down")
	srv.Stop()
	return nil
}
