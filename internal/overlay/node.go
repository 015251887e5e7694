package overlay

import (
	"net/netip"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
)

// Node is the overlay library's own handle. Host drives it; a real binding
// would wrap a concrete ZeroTier core, a test double can stand in for one
// in package tests.
//
// Every method that advances virtual time returns the next time the caller
// should invoke ProcessBackgroundTasks, mirroring ZT_Node_processBackgroundTasks's
// nextBackgroundTaskDeadline out-parameter.
type Node interface {
	// Address returns the 40-bit node id the library assigned itself.
	Address() addrbook.NodeID

	// Join attaches the node to nwid. Idempotent.
	Join(nwid uint64) error

	// Leave detaches the node from nwid.
	Leave(nwid uint64) error

	// ProcessBackgroundTasks runs the library's periodic work and returns
	// the next time it should be called again.
	ProcessBackgroundTasks(now time.Time) (time.Time, error)

	// ProcessWirePacket feeds one UDP datagram, received from src, into the
	// library and returns the next background-task deadline.
	ProcessWirePacket(now time.Time, src netip.AddrPort, data []byte) (time.Time, error)

	// ProcessVirtualNetworkFrame injects an outbound Ethernet frame as if
	// transmitted onto nwid by srcMAC, destined to destMAC; the library
	// encrypts/wraps it and calls back Callbacks.WirePacketSend. Returns the
	// next background-task deadline.
	ProcessVirtualNetworkFrame(now time.Time, nwid uint64, srcMAC, destMAC addrbook.MAC, etherType uint16, data []byte) (time.Time, error)

	// NetworkConfig returns the current virtual-network configuration for
	// nwid, or ok=false if the network is not yet configured.
	NetworkConfig(nwid uint64) (VirtualConfig, bool)

	// Close releases the library instance.
	Close() error
}

// VirtualConfig is the subset of the library's per-network configuration the
// adapter cares about: the negotiated MTU, captured by bind() querying the
// current virtual-network config.
type VirtualConfig struct {
	NWID        uint64
	MTU         uint32
	PhysicalMTU uint32
}

// ConfigOp identifies which virtual-network configuration event fired.
type ConfigOp uint8

const (
	ConfigOpUp ConfigOp = iota
	ConfigOpUpdate
	ConfigOpDown
	ConfigOpDestroy
)

// Event is a library-level lifecycle notification, delivered through
// Callbacks.Event purely for logging; the adapter core reacts to nothing in
// this enum.
type Event uint8

const (
	EventOnline Event = iota
	EventOffline
	EventUp
	EventDown
	EventTrace
)

// StateObjectType identifies a persistable library object. Only
// identity-public/identity-secret/planet are ever filed; moon, peer, and
// network-config are deliberately never persisted.
type StateObjectType uint8

const (
	StateObjectNone StateObjectType = iota
	StateObjectIdentityPublic
	StateObjectIdentitySecret
	StateObjectPlanet
	StateObjectMoon
	StateObjectPeer
	StateObjectNetworkConfig
)

// Callbacks is the library's view of its host: every method the library
// invokes synchronously, with the Host's global lock already held. A
// callback the library invokes this way must never reacquire that lock.
// Host implements this.
type Callbacks interface {
	// StatePut persists data under objtype, or deletes the object when data
	// is nil.
	StatePut(objtype StateObjectType, data []byte)

	// StateGet retrieves a previously persisted object, or ok=false if none
	// exists.
	StateGet(objtype StateObjectType) (data []byte, ok bool)

	// WirePacketSend transmits a raw UDP datagram to dst.
	WirePacketSend(dst netip.AddrPort, data []byte) error

	// VirtualNetworkFrame delivers an inbound Ethernet frame received on
	// nwid from srcMAC to destMAC.
	VirtualNetworkFrame(nwid uint64, srcMAC, destMAC addrbook.MAC, etherType uint16, data []byte)

	// VirtualNetworkConfig reports a configuration change for nwid.
	VirtualNetworkConfig(nwid uint64, op ConfigOp, cfg VirtualConfig)

	// EventNotify reports a library lifecycle event.
	EventNotify(event Event)
}
