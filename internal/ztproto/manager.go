package ztproto

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/wire"
)

// Sentinel errors surfaced by Manager itself, distinct from the Kind
// taxonomy used for user-op completions.
var (
	ErrUnknownAddr = errors.New("ztproto: no endpoint or pipe bound to address")
	ErrWrongNode   = errors.New("ztproto: listener node does not match host node id")
)

// MetricsReporter decouples this package from the concrete Prometheus
// collector so ztproto stays free of a direct dependency on it.
type MetricsReporter interface {
	FrameSent(nwid uint64, op wire.Opcode)
	FrameReceived(nwid uint64, op wire.Opcode)
	FrameDropped(nwid uint64, op wire.Opcode, reason string)
	FragmentReassembled(nwid uint64)
	ConnectRetry(nwid uint64)
	ConnectOutcome(nwid uint64, outcome string)
}

// Manager owns every Endpoint and Pipe of one Overlay Host: the local
// address registry, the secondary remote-address index required for pipe
// identity, and the demux of incoming frames to their owner. One Manager
// is created per overlay.Host.
type Manager struct {
	mu sync.Mutex

	ownNode  addrbook.NodeID
	registry *addrbook.Registry

	endpoints     map[addrbook.Addr]*Endpoint
	pipesByRemote map[addrbook.Addr]*Pipe

	sender   FrameSender
	metrics  MetricsReporter
	logger   *slog.Logger
	onChange StateCallback
}

// NewManager constructs a Manager for a host whose own overlay node id is
// ownNode. sender is the Host's send_frame capability; metrics may be nil.
func NewManager(ownNode addrbook.NodeID, sender FrameSender, metrics MetricsReporter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ownNode:       ownNode,
		registry:      addrbook.NewRegistry(),
		endpoints:     make(map[addrbook.Addr]*Endpoint),
		pipesByRemote: make(map[addrbook.Addr]*Pipe),
		sender:        sender,
		metrics:       metrics,
		logger:        logger.With(slog.String("component", "ztproto")),
	}
}

// OnStateChange registers cb to receive pipe creation and teardown events
// (see StateChange). Only one
// callback is supported, matching the single operator-facing sink the
// daemon wires up.
func (m *Manager) OnStateChange(cb StateCallback) { m.onChange = cb }

// Bind creates and binds a new Endpoint. node is the
// requested node half of the local address; 0 means wildcard/own node.
// port 0 requests ephemeral allocation.
func (m *Manager) Bind(mode Mode, nwid uint64, node addrbook.NodeID, port uint32, protocol uint16, recvMaxSize uint32) (*Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == ModeListen && node != 0 && node != m.ownNode {
		return nil, fmt.Errorf("bind: %w", ErrWrongNode)
	}
	if node == 0 {
		node = m.ownNode
	}

	ep := newEndpoint(mode, nwid, protocol, recvMaxSize, m.sender, m.logger)
	addr, err := m.registry.Bind(node, port, ep)
	if err != nil {
		return nil, fmt.Errorf("bind: %w", err)
	}
	ep.localAddr = addr
	ep.transitionTo(EndpointEventBind)
	if mode == ModeListen {
		ep.transitionTo(EndpointEventListen)
	}
	m.endpoints[addr] = ep
	return ep, nil
}

// Connect starts a dialer's connect-request retry loop.
func (m *Manager) Connect(ep *Endpoint, remote addrbook.Addr, now time.Time, complete AcceptCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ep.Connect(remote, now, complete)
}

// Accept queues a listener's pending accept() operation.
func (m *Manager) Accept(ep *Endpoint, now time.Time, complete AcceptCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ep.Accept(complete); err != nil {
		return err
	}
	ep.drainBacklog(now, func(remote addrbook.Addr, peerProto uint16) (*Pipe, error) {
		return m.createPipe(ep, ep.localAddr.Node(), remote, peerProto)
	})
	return nil
}

// CloseEndpoint releases ep's address and cancels every pending op.
func (m *Manager) CloseEndpoint(ep *Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := ep.localAddr
	ep.Close()
	delete(m.endpoints, addr)
	if addr != 0 {
		m.registry.Release(addr)
	}
}

// ClosePipe tears p down explicitly.
func (m *Manager) ClosePipe(p *Pipe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Close()
	m.teardownPipe(p)
}

// createPipe allocates the pipe's local address (reusing the dialer
// endpoint's address, or freshly allocating one for a listener accept) and
// indexes the pipe by both local and remote address, maintaining the
// dual-index invariant.
func (m *Manager) createPipe(ep *Endpoint, node addrbook.NodeID, remote addrbook.Addr, peerProto uint16) (*Pipe, error) {
	var local addrbook.Addr
	if ep.mode == ModeDial {
		local = ep.localAddr
	} else {
		addr, err := m.registry.Bind(node, 0, nil)
		if err != nil {
			return nil, err
		}
		local = addr
	}

	pipe := newPipe(local, remote, ep.nwid, ep.mtu, ep.recvMaxSize, peerProto, m.sender, m.logger)
	m.registry.Rebind(local, pipe)
	m.pipesByRemote[remote] = pipe
	m.notify("pipe", pipe.nwid, local, "", pipe.state.String())
	return pipe, nil
}

// HandleFrame demultiplexes one decoded wire frame arriving on (local,
// remote) to its owning pipe or endpoint: first by remote address to a
// pipe bound to local, then by local address. nwid is not part of the
// lookup.
func (m *Manager) HandleFrame(now time.Time, nwid uint64, local, remote addrbook.Addr, f wire.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.FrameReceived(nwid, f.Op)
	}

	if pipe, ok := m.pipesByRemote[remote]; ok && pipe.localAddr == local {
		m.handlePipeFrame(pipe, now, f)
		return
	}

	owner, ok := m.registry.Lookup(local)
	if !ok {
		m.replyNotConnected(nwid, local, remote, f)
		return
	}

	switch o := owner.(type) {
	case *Pipe:
		m.handlePipeFrame(o, now, f)
	case *Endpoint:
		m.handleEndpointFrame(o, now, nwid, local, remote, f)
	default:
		m.logger.Warn("registry owner has unexpected type", slog.String("addr", local.String()))
	}
}

func (m *Manager) handleEndpointFrame(ep *Endpoint, now time.Time, nwid uint64, local, remote addrbook.Addr, f wire.Frame) {
	switch f.Op {
	case wire.OpConnReq:
		if ep.mode != ModeListen {
			return
		}
		ep.IngestConnReq(now, remote, f.Proto,
			func(r addrbook.Addr) *Pipe { return m.pipesByRemote[r] },
			func(r addrbook.Addr, proto uint16) (*Pipe, error) {
				return m.createPipe(ep, local.Node(), r, proto)
			},
		)
	case wire.OpConnAck:
		if ep.mode != ModeDial || ep.creqTry == 0 {
			return
		}
		if _, exists := m.pipesByRemote[remote]; exists {
			return // duplicate ack
		}
		oldAddr := ep.localAddr
		pipe, err := m.createPipe(ep, local.Node(), remote, f.Proto)
		if err != nil {
			ep.FailConnect(err)
			if m.metrics != nil {
				m.metrics.ConnectOutcome(nwid, "error")
			}
			return
		}
		ep.CompleteConnect(pipe)
		delete(m.endpoints, oldAddr)
		if m.metrics != nil {
			m.metrics.ConnectOutcome(nwid, "success")
		}
	case wire.OpError:
		if ep.creqTry == 0 {
			return
		}
		ep.FailConnect(mapErrorCode(f.ErrCode))
		if m.metrics != nil {
			m.metrics.ConnectOutcome(nwid, "refused")
		}
	default:
		m.replyNotConnected(nwid, local, remote, f)
	}
}

func (m *Manager) handlePipeFrame(p *Pipe, now time.Time, f wire.Frame) {
	switch f.Op {
	case wire.OpData, wire.OpDataMore:
		if err := p.IngestData(now, f.Data); err != nil {
			if m.metrics != nil {
				m.metrics.FrameDropped(p.nwid, f.Op, err.Error())
			}
			p.CloseWithError(KindOf(err))
			m.teardownPipe(p)
			return
		}
		if m.metrics != nil {
			m.metrics.FragmentReassembled(p.nwid)
		}
	case wire.OpPingReq:
		p.IngestPingReq()
	case wire.OpPingAck:
		// Liveness-timer reset is left unimplemented; ping cadence is left
		// for a future keepalive policy.
	case wire.OpDiscReq:
		p.IngestDiscReq()
		m.teardownPipe(p)
	case wire.OpConnReq:
		m.sender.SendFrame(p.nwid, p.localAddr, p.remoteAddr, wire.Frame{
			Op: wire.OpConnAck, DstPort: p.remoteAddr.Port(), SrcPort: p.localAddr.Port(), Proto: f.Proto,
		})
	}
}

func (m *Manager) replyNotConnected(nwid uint64, local, remote addrbook.Addr, f wire.Frame) {
	switch f.Op {
	case wire.OpConnReq:
		m.sender.SendFrame(nwid, local, remote, wire.Frame{
			Op: wire.OpError, DstPort: remote.Port(), SrcPort: local.Port(),
			ErrCode: wire.ErrCodeRefused, ErrMessage: "no listener",
		})
	case wire.OpData, wire.OpDataMore, wire.OpPingReq, wire.OpConnAck:
		m.sender.SendFrame(nwid, local, remote, wire.Frame{
			Op: wire.OpError, DstPort: remote.Port(), SrcPort: local.Port(),
			ErrCode: wire.ErrCodeNotConnected, ErrMessage: "not connected",
		})
	}
}

func (m *Manager) teardownPipe(p *Pipe) {
	delete(m.pipesByRemote, p.remoteAddr)
	m.registry.Release(p.localAddr)
	p.release()
	m.notify("pipe", p.nwid, p.localAddr, "closing", p.state.String())
}

func (m *Manager) notify(kind string, nwid uint64, addr addrbook.Addr, old, newS string) {
	if m.onChange == nil {
		return
	}
	m.onChange(StateChange{Kind: kind, NWID: nwid, Addr: addr, OldState: old, NewState: newS})
}

// Tick drives the connect-retry timers and listener backlog expiry of
// every endpoint this manager owns. It returns
// the earliest time a retry timer next needs attention, or the zero Time if
// none are pending; the caller (overlay.Host's background thread) uses this
// to compute its next scheduled wake.
func (m *Manager) Tick(now time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next time.Time
	for _, ep := range m.endpoints {
		if ep.mode == ModeListen {
			ep.evictExpiredBacklog(now)
		}
		if ep.state == EndpointConnecting && !ep.retryDeadline.After(now) {
			before := ep.creqTry
			ep.RetryTimerFired(now)
			if m.metrics != nil && ep.creqTry > before {
				m.metrics.ConnectRetry(ep.nwid)
			}
		}
		if ep.state == EndpointConnecting && (next.IsZero() || ep.retryDeadline.Before(next)) {
			next = ep.retryDeadline
		}
	}
	return next
}

// NetworkUp applies a virtual-network-config up/update event to every
// endpoint bound to nwid: it captures the MTU and re-emits conn-req for a
// dialer with a pending connect once the network becomes usable.
func (m *Manager) NetworkUp(nwid uint64, mtu uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ep := range m.endpoints {
		if ep.nwid != nwid {
			continue
		}
		ep.SetMTU(mtu)
		if ep.mode == ModeDial && ep.state == EndpointConnecting {
			ep.emitConnReq()
		}
	}
}

// EndpointSnapshot is a read-only view of one Endpoint, returned by
// Manager.Snapshot for operator inspection (e.g. ztpipectl endpoints).
type EndpointSnapshot struct {
	LocalAddr addrbook.Addr
	NWID      uint64
	Mode      Mode
	State     EndpointState
	Protocol  uint16
}

// PipeSnapshot is a read-only view of one Pipe, returned by
// Manager.Snapshot for operator inspection (e.g. ztpipectl pipes).
type PipeSnapshot struct {
	LocalAddr    addrbook.Addr
	RemoteAddr   addrbook.Addr
	NWID         uint64
	State        PipeState
	PeerProtocol uint16
}

// Snapshot returns a consistent, lock-free-to-read copy of every endpoint
// and pipe this manager currently owns, for the operator-facing status
// surface.
func (m *Manager) Snapshot() ([]EndpointSnapshot, []PipeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoints := make([]EndpointSnapshot, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		endpoints = append(endpoints, EndpointSnapshot{
			LocalAddr: ep.localAddr,
			NWID:      ep.nwid,
			Mode:      ep.mode,
			State:     ep.state,
			Protocol:  ep.protocol,
		})
	}

	pipes := make([]PipeSnapshot, 0, len(m.pipesByRemote))
	for _, p := range m.pipesByRemote {
		pipes = append(pipes, PipeSnapshot{
			LocalAddr:    p.localAddr,
			RemoteAddr:   p.remoteAddr,
			NWID:         p.nwid,
			State:        p.state,
			PeerProtocol: p.peerProtocol,
		})
	}

	return endpoints, pipes
}

func mapErrorCode(code wire.ErrCode) error {
	switch code {
	case wire.ErrCodeRefused:
		return ErrConnectionRefused
	case wire.ErrCodeNotConnected:
		return ErrClosed
	case wire.ErrCodeProtoMismatch, wire.ErrCodeProtoOther:
		return ErrProtocolError
	case wire.ErrCodeMsgTooLarge:
		return ErrMessageTooLarge
	default:
		return NewError(KindInternal, "peer reported an unrecognized error code")
	}
}
