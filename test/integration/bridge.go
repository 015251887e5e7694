//go:build integration

package integration_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/overlay"
)

// bridgeNode is a minimal overlay.Node double that short-circuits the
// out-of-scope overlay library: ProcessVirtualNetworkFrame delivers
// straight into the peer Host's VirtualNetworkFrame callback. It exercises
// Host's MAC scrambling and frame demux end to end without any real
// ZeroTier binding, the same trick internal/overlay's own tests use.
type bridgeNode struct {
	addr addrbook.NodeID
	peer *overlay.Host
	cfg  map[uint64]overlay.VirtualConfig
}

func (n *bridgeNode) Address() addrbook.NodeID { return n.addr }
func (n *bridgeNode) Join(uint64) error         { return nil }
func (n *bridgeNode) Leave(uint64) error        { return nil }

func (n *bridgeNode) ProcessBackgroundTasks(time.Time) (time.Time, error) {
	return time.Time{}, nil
}

func (n *bridgeNode) ProcessWirePacket(time.Time, netip.AddrPort, []byte) (time.Time, error) {
	return time.Time{}, nil
}

func (n *bridgeNode) ProcessVirtualNetworkFrame(
	_ time.Time, nwid uint64, srcMAC, destMAC addrbook.MAC, etherType uint16, data []byte,
) (time.Time, error) {
	n.peer.VirtualNetworkFrame(nwid, srcMAC, destMAC, etherType, data)
	return time.Time{}, nil
}

func (n *bridgeNode) NetworkConfig(nwid uint64) (overlay.VirtualConfig, bool) {
	cfg, ok := n.cfg[nwid]
	return cfg, ok
}

func (n *bridgeNode) Close() error { return nil }

// newBridgedHosts builds two overlay.Hosts whose virtual-network frames are
// delivered directly into each other in-process, simulating a reachable
// pair of nodes on nwid without any real overlay network.
func newBridgedHosts(t *testing.T, nwid uint64) (a, b *overlay.Host) {
	t.Helper()

	na := &bridgeNode{addr: 0x1111111111, cfg: map[uint64]overlay.VirtualConfig{
		nwid: {NWID: nwid, MTU: 1500, PhysicalMTU: 1500},
	}}
	nb := &bridgeNode{addr: 0x2222222222, cfg: map[uint64]overlay.VirtualConfig{
		nwid: {NWID: nwid, MTU: 1500, PhysicalMTU: 1500},
	}}

	ha, err := overlay.NewHost(na, overlay.HostConfig{
		BindAddr: netip.MustParseAddr("127.0.0.1"), MaxMTU: 1500,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewHost a: %v", err)
	}
	t.Cleanup(func() { _ = ha.Close() })

	hb, err := overlay.NewHost(nb, overlay.HostConfig{
		BindAddr: netip.MustParseAddr("127.0.0.1"), MaxMTU: 1500,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewHost b: %v", err)
	}
	t.Cleanup(func() { _ = hb.Close() })

	na.peer = hb
	nb.peer = ha

	return ha, hb
}
