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
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	cache "github.com/patrickmn/go-cache"

	"github.com/kadnet/kadrpc/bep5"
	"github.com/kadnet/kadrpc/ids"
	"github.com/kadnet/kadrpc/netutil"
	"github.com/kadnet/kadrpc/reactor"

	"github.com/MOACChain/MoacLib/log"
)

type lifecycleState int32

const (
	stateInitial lifecycleState = iota
	stateRunning
	stateStopped
)

// RoutingTable is the collaborator interface consumed from package
// table: a derived node id, query answering, and the two bookkeeping
// calls the RPC core makes on every classified message and timeout.
type RoutingTable interface {
	bep5.ApplyContext
	bep5.QueryHandler
	RegisterID() ids.NodeID
	ReleaseID(id ids.NodeID)
	IsVerified(addr *net.UDPAddr) bool
	Timeout(addr *net.UDPAddr)
}

// ServerConfig bounds the tunable parameters of an RPCServer.
type ServerConfig struct {
	MaxActiveCalls int
	MaxPacketSize  int

	ThrottleLimit int
	ThrottleIdle  time.Duration

	MinStall, MaxStall, InitialStall time.Duration

	ReactorTick time.Duration

	IPBlocklist *netutil.Netlist

	// Workers sizes the default task pool. Ignored when Scheduler is
	// set.
	Workers int

	// Scheduler overrides the shared task executor. Left nil, the
	// server runs its own bounded worker pool and shuts it down on
	// Stop; a supplied Scheduler is the caller's to close.
	Scheduler Scheduler
}

// DefaultServerConfig returns sane defaults for a single DHT node.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxActiveCalls: 256,
		MaxPacketSize:  1500,
		ThrottleLimit:  20,
		ThrottleIdle:   30 * time.Second,
		MinStall:       500 * time.Millisecond,
		MaxStall:       10 * time.Second,
		InitialStall:   2 * time.Second,
		ReactorTick:    250 * time.Millisecond,
		Workers:        4,
	}
}

// RPCServer is the per-socket RPC server: it owns one UDP endpoint and
// everything that multiplexes over it.
type RPCServer struct {
	cfg   ServerConfig
	laddr *net.UDPAddr
	table RoutingTable
	mgr   reactor.Manager

	state int32 // atomic lifecycleState

	conn   *net.UDPConn
	id     ids.NodeID
	socket *socketHandler

	startTime   time.Time
	numReceived int64
	numSent     int64
	numEnqueued int64

	calls     *callTable
	queueMu   sync.Mutex
	callQueue []*RPCCall

	pipe       *pipeline
	estimator  *timeoutFilter
	consensus  *consensusTracker
	reach      *reachability
	throttle   *spamThrottle
	strayDedup *cache.Cache
	retired    *lru.Cache // recently retired txn ids, to tell dups from strays
	stats      *Stats

	sched   Scheduler
	ownPool *workerPool // non-nil iff the server created sched itself

	enqueue *enqueueListeners
	declog  declogQueue

	natAddr  atomic.Value // *net.UDPAddr
	localDst atomic.Value // net.IP, learned from inbound control messages on a wildcard bind
}

// NewServer builds an RPCServer bound to laddr, backed by table for
// routing-table semantics and mgr for readiness notifications. Start
// must be called before the server does anything.
func NewServer(laddr *net.UDPAddr, table RoutingTable, mgr reactor.Manager, cfg ServerConfig) *RPCServer {
	sched := cfg.Scheduler
	var ownPool *workerPool
	if sched == nil {
		ownPool = newWorkerPool(cfg.Workers)
		sched = ownPool
	}
	return &RPCServer{
		cfg:   cfg,
		laddr: laddr,
		table: table,
		mgr:   mgr,

		sched:   sched,
		ownPool: ownPool,

		calls: newCallTable(),
		pipe:  newPipeline(),
		estimator: newTimeoutFilter(EstimatorConfig{
			MinStall:     cfg.MinStall,
			MaxStall:     cfg.MaxStall,
			InitialStall: cfg.InitialStall,
		}),
		consensus:  newConsensusTracker(),
		reach:      newReachability(),
		throttle:   newSpamThrottle(cfg.ThrottleLimit, cfg.ThrottleIdle),
		strayDedup: cache.New(cfg.ThrottleIdle, cfg.ThrottleIdle/2),
		retired:    newRetiredCache(),
		stats:      newStats(),
		enqueue:    newEnqueueListeners(),
	}
}

// retiredCap bounds the recently-retired transaction id cache. It only
// needs to cover the window in which a peer might still retransmit a
// response we already consumed, not the server's lifetime.
const retiredCap = 256

func newRetiredCache() *lru.Cache {
	c, err := lru.New(retiredCap)
	if err != nil {
		panic("rpc: lru.New: " + err.Error())
	}
	return c
}

// Start transitions INITIAL -> RUNNING: binds the socket, registers
// with the reactor, and records the start time. Calling Start from any
// other state is a programmer error and fails loudly.
func (s *RPCServer) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, int32(stateInitial), int32(stateRunning)) {
		return fmt.Errorf("rpc: start called from non-initial state")
	}
	conn, err := net.ListenUDP("udp", s.laddr)
	if err != nil {
		atomic.StoreInt32(&s.state, int32(stateInitial))
		return err
	}
	s.conn = conn
	s.id = s.table.RegisterID()
	s.startTime = time.Now()
	s.estimator.reset()

	s.socket = newSocketHandler(s, conn, s.mgr, s.pipe, s.cfg.MaxPacketSize)
	if err := s.mgr.Register(s.socket); err != nil {
		conn.Close()
		atomic.StoreInt32(&s.state, int32(stateInitial))
		return err
	}

	if laddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		port := laddr.Port
		s.sched.Submit(func() { s.discoverNAT(port) })
	}

	log.Infof("rpc: server listening on %v id=%s", conn.LocalAddr(), s.id)
	return nil
}

// Stop is idempotent once STOPPED. It releases the derived id,
// deregisters from the reactor, drains the pipeline and closes the
// socket.
func (s *RPCServer) Stop() {
	if !atomic.CompareAndSwapInt32(&s.state, int32(stateRunning), int32(stateStopped)) {
		return
	}
	s.table.ReleaseID(s.id)
	s.mgr.DeRegister(s.socket)
	s.pipe.DrainDiscard()
	s.socket.close()
	if s.ownPool != nil {
		s.ownPool.Close()
	}
	log.Infof("rpc: server stopped")
}

// Ping constructs a ping request carrying the derived id and dispatches
// it.
func (s *RPCServer) Ping(dest *net.UDPAddr) *RPCCall {
	c := NewCall(bep5.NewPing("", s.id), dest)
	s.DoCall(c)
	return c
}

// FindNode constructs a find_node request for target and dispatches it.
func (s *RPCServer) FindNode(dest *net.UDPAddr, target ids.NodeID) *RPCCall {
	c := NewCall(bep5.NewFindNode("", s.id, target), dest)
	s.DoCall(c)
	return c
}

// DoCall admits call into the call table with bounded concurrency.
// Admission itself is the atomic step (see dispatch /
// callTable.tryInsertBounded); calls that lose the race for the last
// free slot are queued rather than dropped.
func (s *RPCServer) DoCall(c *RPCCall) {
	c.owner = s
	if s.dispatch(c) {
		return
	}
	s.queueMu.Lock()
	s.callQueue = append(s.callQueue, c)
	s.queueMu.Unlock()
}

// dispatch draws transaction ids until one is accepted by the call
// table under the active-call ceiling, then enqueues the send. Returns
// false if the table is already at the ceiling, in which case c is left
// out of the table with no transaction id (only its expected RTT may have
// been stamped) and the caller is responsible for queuing it.
func (s *RPCServer) dispatch(c *RPCCall) bool {
	// Stamp the RTT budget before the call becomes visible to the timeout
	// sweep; a zero expected RTT would read as already expired.
	if c.ExpectedRTT() == 0 {
		c.SetExpectedRTT(s.estimator.stallTimeout())
	}
	for {
		admitted, collided := s.calls.tryInsertBounded(c, ids.RandomTxnID(), s.cfg.MaxActiveCalls)
		if admitted {
			c.Request.T = string(c.Txn.Bytes())
			break
		}
		if !collided {
			// Ceiling reached before any id was assigned; the caller
			// queues c untouched.
			return false
		}
	}
	c.knownReachable = s.table.IsVerified(c.Dest)
	c.AddListener(&serverCallListener{server: s})

	atomic.AddInt64(&s.numEnqueued, 1)
	s.enqueue.fire(c)

	send := newEnqueuedSend(s.id, c.Request, c, c.Dest, s.estimator.stallTimeout())
	s.pipe.Push(send)
	s.socket.schedule()
	return true
}

// SendMessage enqueues a fire-and-forget send with no call correlation.
func (s *RPCServer) SendMessage(msg *bep5.Msg, dest *net.UDPAddr) {
	send := newEnqueuedSend(s.id, msg, nil, dest, s.estimator.stallTimeout())
	s.pipe.Push(send)
	s.socket.schedule()
}

// removeCall implements callTableOwner. The retired cache remembers the
// transaction id so a late, duplicate response can be told apart from a
// true stray without reviving the call.
func (s *RPCServer) removeCall(c *RPCCall) bool {
	s.calls.remove(c)
	s.retired.Add(c.Txn, struct{}{})
	return true
}

// doQueuedCalls implements callTableOwner: drains as many queued calls
// as free capacity allows, then runs declog callbacks until capacity is
// saturated again. The ceiling itself is enforced by dispatch's own
// atomic admission; if dispatch loses a race for the last slot against
// a concurrent DoCall, the call is put back at the head of the queue
// and draining stops rather than spinning.
func (s *RPCServer) doQueuedCalls() {
	for {
		s.queueMu.Lock()
		if len(s.callQueue) == 0 {
			s.queueMu.Unlock()
			break
		}
		c := s.callQueue[0]
		s.callQueue = s.callQueue[1:]
		s.queueMu.Unlock()

		if c.terminated() {
			continue
		}
		if !s.dispatch(c) {
			s.queueMu.Lock()
			s.callQueue = append([]*RPCCall{c}, s.callQueue...)
			s.queueMu.Unlock()
			break
		}
	}
	for s.calls.Len() < s.cfg.MaxActiveCalls {
		cb, ok := s.declog.Pop()
		if !ok {
			break
		}
		cb()
	}
}

// FindCall is an O(1) lookup by transaction id.
func (s *RPCServer) FindCall(txn ids.TxnID) (*RPCCall, bool) {
	return s.calls.find(txn)
}

// onReactorTick is the periodic external tick the socket's reactor
// registration drives: it sweeps expired calls and re-evaluates the
// reachability watchdog on the same cadence, with no timer goroutine of
// its own.
func (s *RPCServer) onReactorTick(now time.Time) {
	s.calls.sweepTimeouts(now)
	s.reach.check(now, atomic.LoadInt64(&s.numReceived), func() {
		s.estimator.reset()
	})
}

// IsReachable reports the current watchdog state.
func (s *RPCServer) IsReachable() bool { return s.reach.IsReachable() }

// OnEnqueue registers l to observe every admitted call, returning a
// handle for later removal via RemoveEnqueueListener.
func (s *RPCServer) OnEnqueue(l EnqueueListener) ListenerHandle {
	return s.enqueue.Add(l)
}

// RemoveEnqueueListener deregisters a listener added via OnEnqueue.
func (s *RPCServer) RemoveEnqueueListener(h ListenerHandle) {
	s.enqueue.Remove(h)
}

// OnDeclog registers a one-shot task to run once the call table has
// free capacity.
func (s *RPCServer) OnDeclog(t DeclogTask) {
	s.declog.Add(t)
}

// GetTimeoutFilter exposes the RTT/loss estimator.
func (s *RPCServer) GetTimeoutFilter() *timeoutFilter { return s.estimator }

// GetStats exposes the stats sink.
func (s *RPCServer) GetStats() *Stats { return s.stats }

// GetNumActiveRPCCalls returns the current call-table occupancy.
func (s *RPCServer) GetNumActiveRPCCalls() int { return s.calls.Len() }

// recordLocalDst remembers the most recent locally-destined address an
// inbound datagram arrived on, learned from the ipv4/ipv6 destination
// control message when bound to a wildcard address.
func (s *RPCServer) recordLocalDst(ip net.IP) {
	s.localDst.Store(ip)
}

// GetPublicAddress returns the socket's own locally bound address, if
// globally unicast. On a wildcard bind this falls back to the most
// recent address learned from an inbound datagram's destination control
// message, since the bind address itself carries no family-scoped
// information in that case.
func (s *RPCServer) GetPublicAddress() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	ua, ok := s.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	if ua.IP.IsGlobalUnicast() {
		return ua
	}
	if v := s.localDst.Load(); v != nil {
		if ip := v.(net.IP); ip.IsGlobalUnicast() {
			return &net.UDPAddr{IP: ip, Port: ua.Port}
		}
	}
	return nil
}

// GetConsensusExternalAddress returns the peer-elected external
// address, if any.
func (s *RPCServer) GetConsensusExternalAddress() *net.UDPAddr {
	return s.consensus.Get()
}

// GetCombinedPublicAddress returns the socket's own globally-unicast
// bind address if present, else the best-effort NAT-discovered address
// if present, else the consensus address.
func (s *RPCServer) GetCombinedPublicAddress() *net.UDPAddr {
	if addr := s.GetPublicAddress(); addr != nil {
		return addr
	}
	if v := s.natAddr.Load(); v != nil {
		return v.(*net.UDPAddr)
	}
	return s.GetConsensusExternalAddress()
}

// DebugString is a human-readable one-line dump of server state for
// debugging and status output.
func (s *RPCServer) DebugString() string {
	s.queueMu.Lock()
	queued := len(s.callQueue)
	s.queueMu.Unlock()
	return fmt.Sprintf(
		"rpc server id=%s laddr=%v uptime=%s active_calls=%d queued=%d reachable=%v "+
			"public=%v consensus=%v enqueued=%d received=%d sent=%d unverified_loss=%.3f verified_loss=%.3f stall=%s",
		s.id, s.laddr, time.Since(s.startTime).Round(time.Second), s.GetNumActiveRPCCalls(), queued,
		s.IsReachable(), s.GetPublicAddress(), s.GetConsensusExternalAddress(),
		atomic.LoadInt64(&s.numEnqueued), atomic.LoadInt64(&s.numReceived), atomic.LoadInt64(&s.numSent),
		s.estimator.UnverifiedLossRate(), s.estimator.VerifiedLossRate(), s.estimator.stallTimeout(),
	)
}
