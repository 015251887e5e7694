package addrbook

import "fmt"

// NodeID is the 40-bit overlay node identifier.
type NodeID uint64

const nodeIDMask = (uint64(1) << 40) - 1

// Addr is a 64-bit conversation address: the upper 40 bits are the overlay
// node id, the lower 24 bits are the port.
type Addr uint64

// Port ranges. Ports in [EphemeralLow, EphemeralHigh] (the high bit of the
// 24-bit port space set) are assigned by the allocator; ports in
// [StaticLow, StaticHigh] are requested explicitly by a caller. Port 0 is
// never a valid assigned port.
const (
	PortMask      = 0xFFFFFF
	EphemeralLow  = 0x800000
	EphemeralHigh = 0xFFFFFF
	StaticLow     = 0x000001
	StaticHigh    = 0x7FFFFF
)

// NewAddr combines a node id and port into a conversation address.
func NewAddr(node NodeID, port uint32) Addr {
	return Addr((uint64(node)&nodeIDMask)<<24 | uint64(port&PortMask))
}

// Node returns the node-id half of the address.
func (a Addr) Node() NodeID { return NodeID(uint64(a) >> 24) }

// Port returns the port half of the address.
func (a Addr) Port() uint32 { return uint32(a) & PortMask }

// IsEphemeral reports whether a's port falls in the ephemeral range.
func (a Addr) IsEphemeral() bool {
	p := a.Port()
	return p >= EphemeralLow && p <= EphemeralHigh
}

// IsZero reports whether a carries no assigned port, i.e. the wildcard
// address used by an unbound endpoint.
func (a Addr) IsZero() bool { return a.Port() == 0 }

// String renders the address as node:port in hex/decimal, matching the zt://
// URL form described in the external-interfaces contract.
func (a Addr) String() string {
	return fmt.Sprintf("%010x:%d", uint64(a.Node()), a.Port())
}

// MAC is a 48-bit overlay Ethernet address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// NodeToMAC derives the virtual Ethernet MAC a node uses on network nwid.
//
// The leading octet is derived from the low byte of nwid with the locally
// administered/unicast bits forced on; ZeroTier avoids the well-known
// 0x52 OUI prefix used by some hypervisors by remapping it to 0x32. The
// remaining five octets start as the node id's big-endian bytes and are then
// XORed with the next five bytes of nwid above its low octet, byte-for-byte
// (mac[1] with nwid's bits 15-8, through mac[5] with bits 47-40).
func NodeToMAC(node NodeID, nwid uint64) MAC {
	var mac MAC

	hi := byte(nwid&0xfe) | 0x02
	if hi == 0x52 {
		hi = 0x32
	}
	mac[0] = hi

	n := uint64(node) & nodeIDMask
	mac[1] = byte(n >> 32)
	mac[2] = byte(n >> 24)
	mac[3] = byte(n >> 16)
	mac[4] = byte(n >> 8)
	mac[5] = byte(n)

	nb := nwidTailBytes(nwid)
	mac[1] ^= nb[0]
	mac[2] ^= nb[1]
	mac[3] ^= nb[2]
	mac[4] ^= nb[3]
	mac[5] ^= nb[4]

	return mac
}

// MACToNode recovers the node id encoded in mac for network nwid. XOR is its
// own inverse, so this applies the identical mask NodeToMAC applied; the
// leading octet carries no node-id bits and is ignored.
func MACToNode(mac MAC, nwid uint64) NodeID {
	nb := nwidTailBytes(nwid)

	b1 := mac[1] ^ nb[0]
	b2 := mac[2] ^ nb[1]
	b3 := mac[3] ^ nb[2]
	b4 := mac[4] ^ nb[3]
	b5 := mac[5] ^ nb[4]

	n := uint64(b1)<<32 | uint64(b2)<<24 | uint64(b3)<<16 | uint64(b4)<<8 | uint64(b5)
	return NodeID(n & nodeIDMask)
}

// nwidTailBytes returns the five bytes of nwid above its low octet, in
// ascending bit-significance order: nb[0] is bits 15-8, nb[4] is bits 47-40.
func nwidTailBytes(nwid uint64) [5]byte {
	var nb [5]byte
	for i := range nb {
		nb[i] = byte(nwid >> (8 * (i + 1)))
	}
	return nb
}
