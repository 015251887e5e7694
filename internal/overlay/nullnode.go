package overlay

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
)

// NullNode is a Node that never attaches to a real overlay network: Join,
// ProcessWirePacket, and ProcessVirtualNetworkFrame are all no-ops, and
// NetworkConfig never reports a network as configured.
//
// It lets cmd/ztpiped start, bind local identity, and serve its
// admin/metrics surfaces without a real overlay library binding, so the
// daemon entrypoint is exercisable end to end before a real ZeroTier core
// is wired into the Node seat.
type NullNode struct {
	addr addrbook.NodeID
}

// NewNullNode returns a NullNode. If addr is zero, a random 40-bit node id
// is generated the way a fresh identity would be.
func NewNullNode(addr addrbook.NodeID) *NullNode {
	if addr == 0 {
		addr = randomNodeID()
	}
	return &NullNode{addr: addr}
}

func randomNodeID() addrbook.NodeID {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return addrbook.NodeID(binary.BigEndian.Uint64(b[:]) & 0xFFFFFFFFFF)
}

func (n *NullNode) Address() addrbook.NodeID { return n.addr }
func (n *NullNode) Join(uint64) error         { return nil }
func (n *NullNode) Leave(uint64) error        { return nil }

func (n *NullNode) ProcessBackgroundTasks(now time.Time) (time.Time, error) {
	return now.Add(time.Hour), nil
}

func (n *NullNode) ProcessWirePacket(now time.Time, _ netip.AddrPort, _ []byte) (time.Time, error) {
	return now.Add(time.Hour), nil
}

func (n *NullNode) ProcessVirtualNetworkFrame(
	now time.Time, _ uint64, _, _ addrbook.MAC, _ uint16, _ []byte,
) (time.Time, error) {
	return now.Add(time.Hour), nil
}

func (n *NullNode) NetworkConfig(uint64) (VirtualConfig, bool) { return VirtualConfig{}, false }

func (n *NullNode) Close() error { return nil }
