package overlay

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/ztproto"
)

// fakeNode is a minimal Node double that short-circuits the overlay
// library: ProcessVirtualNetworkFrame delivers straight into the peer
// Host's VirtualNetworkFrame callback, exercising Host's MAC scrambling
// and frame demux without any real socket or library binding.
type fakeNode struct {
	addr addrbook.NodeID
	peer *Host
	cfg  map[uint64]VirtualConfig
}

func (n *fakeNode) Address() addrbook.NodeID { return n.addr }
func (n *fakeNode) Join(uint64) error         { return nil }
func (n *fakeNode) Leave(uint64) error        { return nil }

func (n *fakeNode) ProcessBackgroundTasks(time.Time) (time.Time, error) {
	return time.Time{}, nil
}

func (n *fakeNode) ProcessWirePacket(time.Time, netip.AddrPort, []byte) (time.Time, error) {
	return time.Time{}, nil
}

func (n *fakeNode) ProcessVirtualNetworkFrame(
	_ time.Time, nwid uint64, srcMAC, destMAC addrbook.MAC, etherType uint16, data []byte,
) (time.Time, error) {
	n.peer.VirtualNetworkFrame(nwid, srcMAC, destMAC, etherType, data)
	return time.Time{}, nil
}

func (n *fakeNode) NetworkConfig(nwid uint64) (VirtualConfig, bool) {
	cfg, ok := n.cfg[nwid]
	return cfg, ok
}

func (n *fakeNode) Close() error { return nil }

func newLinkedHosts(t *testing.T, nwid uint64) (listener, dialer *Host) {
	t.Helper()

	fn1 := &fakeNode{addr: 0x1111111111, cfg: map[uint64]VirtualConfig{nwid: {NWID: nwid, MTU: 1500, PhysicalMTU: 1500}}}
	fn2 := &fakeNode{addr: 0x2222222222, cfg: map[uint64]VirtualConfig{nwid: {NWID: nwid, MTU: 1500, PhysicalMTU: 1500}}}

	h1, err := NewHost(fn1, HostConfig{BindAddr: netip.MustParseAddr("127.0.0.1"), MaxMTU: 1500}, nil, nil)
	if err != nil {
		t.Fatalf("NewHost (listener): %v", err)
	}
	t.Cleanup(func() { _ = h1.Close() })

	h2, err := NewHost(fn2, HostConfig{BindAddr: netip.MustParseAddr("127.0.0.1"), MaxMTU: 1500}, nil, nil)
	if err != nil {
		t.Fatalf("NewHost (dialer): %v", err)
	}
	t.Cleanup(func() { _ = h2.Close() })

	fn1.peer = h2
	fn2.peer = h1

	return h1, h2
}

func TestHostDialAcceptRoundTrip(t *testing.T) {
	t.Parallel()

	const nwid = 0xAAAA

	listener, dialer := newLinkedHosts(t, nwid)

	lep, err := listener.Bind(ztproto.ModeListen, nwid, 0, 0, 7, 1<<20)
	if err != nil {
		t.Fatalf("listener Bind: %v", err)
	}

	var acceptedPipe *ztproto.Pipe
	if err := listener.Accept(lep, func(p *ztproto.Pipe, err error) {
		if err != nil {
			t.Fatalf("accept completion error: %v", err)
		}
		acceptedPipe = p
	}); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	dep, err := dialer.Bind(ztproto.ModeDial, nwid, 0, 0, 7, 1<<20)
	if err != nil {
		t.Fatalf("dialer Bind: %v", err)
	}

	var dialedPipe *ztproto.Pipe
	if err := dialer.Connect(dep, lep.LocalAddr(), func(p *ztproto.Pipe, err error) {
		if err != nil {
			t.Fatalf("connect completion error: %v", err)
		}
		dialedPipe = p
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if acceptedPipe == nil {
		t.Fatal("listener never accepted a pipe")
	}
	if dialedPipe == nil {
		t.Fatal("dialer's connect never completed")
	}

	msg := bytes.Repeat([]byte{0xAB}, 4096)
	if _, err := dialedPipe.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var received []byte
	acceptedPipe.Receive(func(m []byte, err error) {
		if err != nil {
			t.Fatalf("receive completion error: %v", err)
		}
		received = m
	})

	if !bytes.Equal(received, msg) {
		t.Fatalf("received %d bytes, want %d matching bytes", len(received), len(msg))
	}
}

func TestMapResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rv   ResultCode
		want ztproto.Kind
	}{
		{ResultOK, ztproto.KindUnspecified},
		{ResultFatalErrorOutOfMemory, ztproto.KindOutOfMemory},
		{ResultFatalErrorDataStoreFail, ztproto.KindPermission},
		{ResultFatalErrorInternal, ztproto.KindInternal},
		{ResultErrorNetworkNotFound, ztproto.KindAddressInvalid},
		{ResultErrorUnsupportedOp, ztproto.KindUnsupported},
		{ResultErrorBadParameter, ztproto.KindInvalid},
		{ResultCode(999), ztproto.KindInternal},
	}

	for _, tt := range tests {
		if got := mapResult(tt.rv); got != tt.want {
			t.Errorf("mapResult(%d) = %v, want %v", tt.rv, got, tt.want)
		}
	}
}

func TestPersistenceStoreMemoryRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewPersistenceStore("")
	if _, ok := store.Get(StateObjectIdentitySecret); ok {
		t.Fatal("expected no data before Put")
	}

	store.Put(StateObjectIdentitySecret, []byte("secret-bytes"))
	data, ok := store.Get(StateObjectIdentitySecret)
	if !ok || string(data) != "secret-bytes" {
		t.Fatalf("Get = %q, %v; want %q, true", data, ok, "secret-bytes")
	}

	store.Put(StateObjectIdentitySecret, nil)
	if _, ok := store.Get(StateObjectIdentitySecret); ok {
		t.Fatal("expected deletion after Put(nil)")
	}

	// Unfiled object types are always rejected.
	store.Put(StateObjectMoon, []byte("ignored"))
	if _, ok := store.Get(StateObjectMoon); ok {
		t.Fatal("StateObjectMoon must never be persisted")
	}
}

func TestPersistenceStoreFileRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewPersistenceStore(t.TempDir())
	store.Put(StateObjectIdentityPublic, []byte("public-bytes"))

	data, ok := store.Get(StateObjectIdentityPublic)
	if !ok || string(data) != "public-bytes" {
		t.Fatalf("Get = %q, %v; want %q, true", data, ok, "public-bytes")
	}
}
