package ztproto

import (
	"log/slog"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/wire"
)

// Connect-retry and backlog constants.
const (
	ConnAttempts     = 12
	ConnInterval     = 5 * time.Second
	ListenExpire     = 60 * time.Second
	backlogCapacity  = 128
	defaultMTU       = 1500
)

// Mode distinguishes a listener from a dialer.
type Mode uint8

const (
	ModeListen Mode = iota
	ModeDial
)

func (m Mode) String() string {
	if m == ModeListen {
		return "listen"
	}
	return "dial"
}

type backlogEntry struct {
	expireAt  time.Time
	remote    addrbook.Addr
	peerProto uint16
}

// AcceptCompletion is invoked exactly once, synchronously and under the
// Manager's lock, to complete a pending accept() or connect() operation.
type AcceptCompletion func(p *Pipe, err error)

type acceptWaiter struct {
	complete AcceptCompletion
}

// Endpoint is a listener or dialer owning one local conversation address.
type Endpoint struct {
	mode        Mode
	nwid        uint64
	localAddr   addrbook.Addr
	dialTarget  addrbook.Addr
	protocol    uint16
	recvMaxSize uint32
	mtu         uint32
	state       EndpointState

	backlog []backlogEntry
	waiters []acceptWaiter

	creqTry       int
	retryDeadline time.Time

	sender FrameSender
	logger *slog.Logger
}

func newEndpoint(mode Mode, nwid uint64, protocol uint16, recvMaxSize uint32, sender FrameSender, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		mode:        mode,
		nwid:        nwid,
		protocol:    protocol,
		recvMaxSize: recvMaxSize,
		mtu:         defaultMTU,
		state:       EndpointFresh,
		sender:      sender,
		logger:      logger,
	}
}

func (e *Endpoint) LocalAddr() addrbook.Addr { return e.localAddr }
func (e *Endpoint) NWID() uint64             { return e.nwid }
func (e *Endpoint) Mode() Mode               { return e.mode }
func (e *Endpoint) State() EndpointState     { return e.state }

// SetMTU records the physical MTU captured from the overlay's virtual
// network config, via overlay.Host.Bind and
// overlay.Host.VirtualNetworkConfig.
func (e *Endpoint) SetMTU(mtu uint32) { e.mtu = mtu }

func (e *Endpoint) transitionTo(event EndpointEvent) EndpointFSMResult {
	res := ApplyEndpointEvent(e.state, event)
	if res.Changed {
		e.logger.Debug("endpoint state change",
			slog.String("addr", e.localAddr.String()),
			slog.String("old", res.OldState.String()),
			slog.String("new", res.NewState.String()),
			slog.String("event", event.String()),
		)
	}
	e.state = res.NewState
	return res
}

// Connect starts the connect-request retry loop.
func (e *Endpoint) Connect(remote addrbook.Addr, now time.Time, complete AcceptCompletion) error {
	if e.state != EndpointBound {
		return ErrClosed
	}
	e.transitionTo(EndpointEventConnect)
	e.dialTarget = remote
	e.creqTry = 1
	e.retryDeadline = now.Add(ConnInterval)
	e.waiters = append(e.waiters, acceptWaiter{complete: complete})
	e.emitConnReq()
	return nil
}

// Accept queues a pending accept() operation.
func (e *Endpoint) Accept(complete AcceptCompletion) error {
	if e.state != EndpointListening {
		return ErrClosed
	}
	e.waiters = append(e.waiters, acceptWaiter{complete: complete})
	return nil
}

func (e *Endpoint) emitConnReq() {
	e.sender.SendFrame(e.nwid, e.localAddr, e.dialTarget, wire.Frame{
		Op:      wire.OpConnReq,
		DstPort: e.dialTarget.Port(),
		SrcPort: e.localAddr.Port(),
		Proto:   e.protocol,
	})
}

// RetryTimerFired advances the dialer's connect-retry state machine. The
// caller (Manager.Tick) is responsible for invoking this only when
// e.retryDeadline has elapsed.
func (e *Endpoint) RetryTimerFired(now time.Time) {
	if e.state != EndpointConnecting {
		return
	}
	if e.creqTry > ConnAttempts {
		e.transitionTo(EndpointEventRetryExhausted)
		e.failWaiters(ErrTimedOut)
		e.creqTry = 0
		return
	}
	e.creqTry++
	e.retryDeadline = now.Add(ConnInterval)
	e.emitConnReq()
}

// CompleteConnect hands pipe to the waiting connect() caller and releases
// the endpoint's local address to it.
func (e *Endpoint) CompleteConnect(pipe *Pipe) {
	e.transitionTo(EndpointEventConnected)
	e.localAddr = 0
	e.creqTry = 0
	if len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		w.complete(pipe, nil)
	}
}

// FailConnect completes the pending connect() with err.
func (e *Endpoint) FailConnect(err error) {
	e.failWaiters(err)
	e.creqTry = 0
}

func (e *Endpoint) failWaiters(err error) {
	for _, w := range e.waiters {
		w.complete(nil, err)
	}
	e.waiters = nil
}

// IngestConnReq applies the listener's conn-req ingest rules.
// findPeerPipe and createPipe are supplied by Manager, which alone can
// allocate a fresh ephemeral address and index the new pipe.
func (e *Endpoint) IngestConnReq(
	now time.Time,
	remote addrbook.Addr,
	peerProto uint16,
	findPeerPipe func(addrbook.Addr) *Pipe,
	createPipe func(remote addrbook.Addr, peerProto uint16) (*Pipe, error),
) {
	if p := findPeerPipe(remote); p != nil {
		e.sender.SendFrame(e.nwid, p.localAddr, p.remoteAddr, wire.Frame{
			Op: wire.OpConnAck, DstPort: p.remoteAddr.Port(), SrcPort: p.localAddr.Port(), Proto: e.protocol,
		})
		return
	}
	for _, b := range e.backlog {
		if b.remote == remote {
			return // duplicate request
		}
	}
	if len(e.backlog) >= backlogCapacity {
		return
	}
	e.backlog = append(e.backlog, backlogEntry{expireAt: now.Add(ListenExpire), remote: remote, peerProto: peerProto})
	e.drainBacklog(now, createPipe)
}

// drainBacklog pairs backlog entries with waiting accept() ops.
func (e *Endpoint) drainBacklog(now time.Time, createPipe func(remote addrbook.Addr, peerProto uint16) (*Pipe, error)) {
	for len(e.backlog) > 0 && len(e.waiters) > 0 {
		e.evictExpiredBacklog(now)
		if len(e.backlog) == 0 {
			return
		}
		entry := e.backlog[0]
		e.backlog = e.backlog[1:]
		w := e.waiters[0]
		e.waiters = e.waiters[1:]

		pipe, err := createPipe(entry.remote, entry.peerProto)
		if err != nil {
			w.complete(nil, err)
			continue
		}
		e.sender.SendFrame(e.nwid, pipe.localAddr, pipe.remoteAddr, wire.Frame{
			Op: wire.OpConnAck, DstPort: pipe.remoteAddr.Port(), SrcPort: pipe.localAddr.Port(), Proto: e.protocol,
		})
		w.complete(pipe, nil)
	}
}

func (e *Endpoint) evictExpiredBacklog(now time.Time) {
	for len(e.backlog) > 0 && !e.backlog[0].expireAt.After(now) {
		e.backlog = e.backlog[1:]
	}
}

// Close cancels every pending operation with KindClosed.
func (e *Endpoint) Close() {
	e.transitionTo(EndpointEventClose)
	e.failWaiters(ErrClosed)
	e.backlog = nil
}
