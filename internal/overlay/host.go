package overlay

// host.go: the Overlay Host. Host owns the dual UDP sockets, the
// background scheduler, and the persistence callbacks the library needs,
// and bridges decoded wire frames between the library and ztproto.Manager.
//
// Locking follows a single-threaded-callback discipline: h.mu is
// the one lock covering Host state, Node calls, and every call into
// Manager. It is acquired once at each of the three entry points (a
// wrapped public operation, the recv loop, the scheduler loop) and never
// reacquired by a callback the library invokes synchronously underneath —
// SendFrame, WirePacketSend, VirtualNetworkFrame, and VirtualNetworkConfig
// all assume h.mu is already held.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/wire"
	"github.com/ztpipe/ztpipe/internal/ztproto"
)

// recvHeadroom is the extra buffer margin above the overlay's maximum MTU.
const recvHeadroom = 128

// defaultMaxMTU is used when HostConfig.MaxMTU is left zero.
const defaultMaxMTU = 1500

var errNoSocket = errors.New("overlay: no UDP socket bound for that address family")

// HostConfig configures a new Host.
type HostConfig struct {
	// Home is the persistence directory; empty selects ephemeral,
	// in-memory keying.
	Home string

	// BindAddr restricts the UDP sockets to one local address; the zero
	// value binds the wildcard address on both families.
	BindAddr netip.Addr

	// MaxMTU bounds the receive buffer; defaults to defaultMaxMTU.
	MaxMTU uint32

	// DefaultRecvMaxSize is handed to Manager.Bind for endpoints that
	// don't specify their own.
	DefaultRecvMaxSize uint32
}

// Host is the Overlay Host.
type Host struct {
	mu sync.Mutex

	node    Node
	manager *ztproto.Manager
	store   PersistenceStore
	logger  *slog.Logger

	conn4 *net.UDPConn
	conn6 *net.UDPConn

	maxMTU    uint32
	recvMaxSz uint32

	wake    time.Time
	resetCh chan struct{}

	joined map[uint64]struct{}
}

// NewHost constructs a Host around node, the out-of-scope overlay library
// collaborator, and binds its UDP sockets. metrics may be nil.
func NewHost(node Node, cfg HostConfig, metrics ztproto.MetricsReporter, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Home != "" {
		if err := ensureDir(cfg.Home); err != nil {
			return nil, err
		}
	}
	maxMTU := cfg.MaxMTU
	if maxMTU == 0 {
		maxMTU = defaultMaxMTU
	}

	h := &Host{
		node:      node,
		store:     NewPersistenceStore(cfg.Home),
		logger:    logger.With(slog.String("component", "overlay.host")),
		maxMTU:    maxMTU,
		recvMaxSz: cfg.DefaultRecvMaxSize,
		resetCh:   make(chan struct{}, 1),
		joined:    make(map[uint64]struct{}),
	}

	conn4, err := h.listen("udp4", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("overlay: bind v4 socket: %w", err)
	}
	h.conn4 = conn4

	conn6, err := h.listen("udp6", cfg.BindAddr)
	if err != nil {
		h.logger.Warn("overlay: v6 socket unavailable", slog.String("error", err.Error()))
	} else {
		h.conn6 = conn6
	}

	h.manager = ztproto.NewManager(node.Address(), h, metrics, logger)
	return h, nil
}

func (h *Host) listen(network string, addr netip.Addr) (*net.UDPConn, error) {
	bindAddr := "0.0.0.0:0"
	if network == "udp6" {
		bindAddr = "[::]:0"
	}
	if addr.IsValid() {
		bindAddr = netip.AddrPortFrom(addr, 0).String()
	}

	rcvBufSize := int(h.maxMTU) + recvHeadroom
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c, rcvBufSize)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, bindAddr)
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("overlay: unexpected packet conn type for %s", network)
	}
	return conn, nil
}

// -------------------------------------------------------------------------
// Wrapped Manager entry points — each acquires h.mu for the duration, per
// the locking discipline described at the top of this file.
// -------------------------------------------------------------------------

// Bind creates and binds a new Endpoint.
func (h *Host) Bind(mode ztproto.Mode, nwid uint64, node addrbook.NodeID, port uint32, protocol uint16, recvMaxSize uint32) (*ztproto.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.joinLocked(nwid); err != nil {
		return nil, err
	}
	if recvMaxSize == 0 {
		recvMaxSize = h.recvMaxSz
	}

	ep, err := h.manager.Bind(mode, nwid, node, port, protocol, recvMaxSize)
	if err != nil {
		return nil, err
	}

	if cfg, ok := h.node.NetworkConfig(nwid); ok {
		ep.SetMTU(cfg.PhysicalMTU)
	}
	return ep, nil
}

// Connect starts a dialer's connect-request retry loop.
func (h *Host) Connect(ep *ztproto.Endpoint, remote addrbook.Addr, complete ztproto.AcceptCompletion) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manager.Connect(ep, remote, time.Now(), complete)
}

// Accept queues a listener's pending accept() operation.
func (h *Host) Accept(ep *ztproto.Endpoint, complete ztproto.AcceptCompletion) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manager.Accept(ep, time.Now(), complete)
}

// CloseEndpoint releases ep's address and cancels every pending op.
func (h *Host) CloseEndpoint(ep *ztproto.Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manager.CloseEndpoint(ep)
}

// ClosePipe tears p down explicitly.
func (h *Host) ClosePipe(p *ztproto.Pipe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manager.ClosePipe(p)
}

// OnStateChange registers cb to receive pipe creation and teardown events
// (see ztproto.StateChange).
func (h *Host) OnStateChange(cb ztproto.StateCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manager.OnStateChange(cb)
}

// NodeAddress returns the overlay node id this Host's Node operates as.
func (h *Host) NodeAddress() addrbook.NodeID { return h.node.Address() }

// Snapshot returns a consistent view of every endpoint and pipe this Host's
// Manager currently owns, for operator inspection.
func (h *Host) Snapshot() ([]ztproto.EndpointSnapshot, []ztproto.PipeSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manager.Snapshot()
}

func (h *Host) joinLocked(nwid uint64) error {
	if _, ok := h.joined[nwid]; ok {
		return nil
	}
	if err := h.node.Join(nwid); err != nil {
		return fmt.Errorf("overlay: join %d: %w", nwid, err)
	}
	h.joined[nwid] = struct{}{}
	return nil
}

// -------------------------------------------------------------------------
// Run — the recv loops and the background scheduler
// -------------------------------------------------------------------------

// Run drives the UDP receive loops and the background scheduler until ctx
// is cancelled or one of them fails.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return h.recvLoop(ctx, h.conn4) })
	if h.conn6 != nil {
		g.Go(func() error { return h.recvLoop(ctx, h.conn6) })
	}
	g.Go(func() error { return h.schedulerLoop(ctx) })
	g.Go(func() error {
		// Unblock recv loops parked in a read once ctx is done.
		<-ctx.Done()
		_ = h.conn4.SetReadDeadline(time.Now())
		if h.conn6 != nil {
			_ = h.conn6.SetReadDeadline(time.Now())
		}
		return nil
	})

	return g.Wait()
}

func (h *Host) recvLoop(ctx context.Context, conn *net.UDPConn) error {
	bufSize := int(h.maxMTU) + recvHeadroom
	buf := make([]byte, bufSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			h.logger.Warn("overlay recv error", slog.String("error", err.Error()))
			continue
		}

		h.mu.Lock()
		now := time.Now()
		next, err := h.node.ProcessWirePacket(now, src, buf[:n])
		if err != nil {
			h.logger.Debug("process wire packet failed", slog.String("error", err.Error()))
		}
		h.rescheduleLocked(next)
		h.mu.Unlock()
	}
}

func (h *Host) schedulerLoop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-h.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		h.mu.Lock()
		now := time.Now()
		next, err := h.node.ProcessBackgroundTasks(now)
		if err != nil {
			h.logger.Warn("background task error", slog.String("error", err.Error()))
		}
		mgrNext := h.manager.Tick(now)
		if !mgrNext.IsZero() && (next.IsZero() || mgrNext.Before(next)) {
			next = mgrNext
		}
		h.wake = next
		h.mu.Unlock()

		d := time.Until(next)
		if next.IsZero() || d <= 0 {
			d = time.Millisecond
		}
		timer.Reset(d)
	}
}

// rescheduleLocked updates h.wake to the earlier of its current value and
// next, waking the scheduler loop if it needs to run sooner. Callers must
// already hold h.mu.
func (h *Host) rescheduleLocked(next time.Time) {
	if next.IsZero() {
		return
	}
	if !h.wake.IsZero() && !next.Before(h.wake) {
		return
	}
	h.wake = next
	select {
	case h.resetCh <- struct{}{}:
	default:
	}
}

// -------------------------------------------------------------------------
// ztproto.FrameSender
// -------------------------------------------------------------------------

// SendFrame implements ztproto.FrameSender. Callers reach this with h.mu
// already held (see the file-level locking note).
func (h *Host) SendFrame(nwid uint64, local, remote addrbook.Addr, f wire.Frame) {
	payload, err := wire.Encode(f)
	if err != nil {
		h.logger.Warn("encode frame failed", slog.String("op", f.Op.String()), slog.String("error", err.Error()))
		return
	}

	srcMAC := addrbook.NodeToMAC(local.Node(), nwid)
	dstMAC := addrbook.NodeToMAC(remote.Node(), nwid)

	next, err := h.node.ProcessVirtualNetworkFrame(time.Now(), nwid, srcMAC, dstMAC, wire.EtherType, payload)
	if err != nil {
		h.logger.Debug("send frame failed", slog.String("op", f.Op.String()), slog.String("error", err.Error()))
		return
	}
	h.rescheduleLocked(next)
}

// -------------------------------------------------------------------------
// Callbacks
// -------------------------------------------------------------------------

// StatePut implements Callbacks.
func (h *Host) StatePut(objtype StateObjectType, data []byte) { h.store.Put(objtype, data) }

// StateGet implements Callbacks.
func (h *Host) StateGet(objtype StateObjectType) ([]byte, bool) { return h.store.Get(objtype) }

// WirePacketSend implements Callbacks.
func (h *Host) WirePacketSend(dst netip.AddrPort, data []byte) error {
	conn := h.conn4
	if dst.Addr().Is6() && !dst.Addr().Is4In6() {
		conn = h.conn6
	}
	if conn == nil {
		return fmt.Errorf("%w: %s", errNoSocket, dst)
	}
	if _, err := conn.WriteToUDPAddrPort(data, dst); err != nil {
		return fmt.Errorf("overlay: wire send to %s: %w", dst, err)
	}
	return nil
}

// VirtualNetworkFrame implements Callbacks: it demuxes an inbound Ethernet
// frame to the protocol engine, parsing it with the frame codec and then
// dispatching on local address to a pipe or endpoint.
func (h *Host) VirtualNetworkFrame(nwid uint64, srcMAC, destMAC addrbook.MAC, etherType uint16, data []byte) {
	if etherType != wire.EtherType {
		return
	}
	f, err := wire.Decode(data)
	if err != nil {
		if errors.Is(err, wire.ErrBodyTooShort) && (f.Op == wire.OpData || f.Op == wire.OpDataMore) {
			// A runt data body still carries a usable header: if it
			// demuxes onto an established pipe, that pipe must close
			// with a protocol error rather than silently drop the
			// frame. Routing through HandleFrame lets the manager make
			// that distinction the same way it does for any other
			// data-frame ingest failure.
			localNode := addrbook.MACToNode(destMAC, nwid)
			remoteNode := addrbook.MACToNode(srcMAC, nwid)
			local := addrbook.NewAddr(localNode, f.DstPort)
			remote := addrbook.NewAddr(remoteNode, f.SrcPort)
			h.manager.HandleFrame(time.Now(), nwid, local, remote, f)
			return
		}
		h.logger.Debug("drop undecodable frame",
			slog.Uint64("nwid", nwid),
			slog.String("error", err.Error()),
		)
		return
	}

	localNode := addrbook.MACToNode(destMAC, nwid)
	remoteNode := addrbook.MACToNode(srcMAC, nwid)
	local := addrbook.NewAddr(localNode, f.DstPort)
	remote := addrbook.NewAddr(remoteNode, f.SrcPort)

	h.manager.HandleFrame(time.Now(), nwid, local, remote, f)
}

// VirtualNetworkConfig implements Callbacks: it captures the MTU and, on a
// network coming up or updating, re-emits a pending dialer's conn-req.
func (h *Host) VirtualNetworkConfig(nwid uint64, op ConfigOp, cfg VirtualConfig) {
	switch op {
	case ConfigOpUp, ConfigOpUpdate:
		h.manager.NetworkUp(nwid, cfg.PhysicalMTU)
	case ConfigOpDown, ConfigOpDestroy:
		// Endpoints are torn down explicitly by their owner.
	}
}

// EventNotify implements Callbacks.
func (h *Host) EventNotify(event Event) {
	h.logger.Debug("overlay event", slog.String("event", eventString(event)))
}

func eventString(e Event) string {
	switch e {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventUp:
		return "up"
	case EventDown:
		return "down"
	case EventTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Close releases both UDP sockets and the library instance.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if h.conn4 != nil {
		errs = append(errs, h.conn4.Close())
	}
	if h.conn6 != nil {
		errs = append(errs, h.conn6.Close())
	}
	errs = append(errs, h.node.Close())
	return errors.Join(errs...)
}
