package addrbook

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrPortsExhausted indicates the ephemeral port range has no free slot.
// With a 2^23-entry range this should never occur in practice; it exists as
// a safety net against a degenerate (leak) state.
var ErrPortsExhausted = errors.New("addrbook: ephemeral port range exhausted")

// ErrAddressInUse indicates an explicitly requested port is already bound.
var ErrAddressInUse = errors.New("addrbook: address in use")

// ErrNotBound indicates a lookup or release against an address this
// registry never allocated.
var ErrNotBound = errors.New("addrbook: address not bound")

// Owner is the endpoint or pipe that currently holds a local conversation
// address. The registry stores it opaquely; internal/ztproto supplies the
// concrete type.
type Owner any

// Registry allocates ephemeral ports, tracks explicit port reservations, and
// demultiplexes a local conversation address to its owning endpoint or pipe.
// One Registry is owned by one Overlay Host.
//
// Two tables are kept: ports (port-only, for O(1) free-port probing) and
// byAddr (full address, for demux). Bind and Release keep both
// consistent under a single mutex, mirroring the allocate/release pairing
// of DiscriminatorAllocator.
type Registry struct {
	mu     sync.Mutex
	ports  map[uint32]struct{}
	byAddr map[Addr]Owner
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		ports:  make(map[uint32]struct{}),
		byAddr: make(map[Addr]Owner),
	}
}

// Bind reserves port (0 for ephemeral allocation) under node and associates
// the resulting address with owner. An explicit nonzero port that is
// already reserved fails with ErrAddressInUse. Port 0 triggers ephemeral
// allocation: start at a randomized offset within the ephemeral range and
// probe forward for a free slot.
func (r *Registry) Bind(node NodeID, port uint32, owner Owner) (Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if port != 0 {
		if _, taken := r.ports[port]; taken {
			return 0, fmt.Errorf("bind port %#x: %w", port, ErrAddressInUse)
		}
		addr := NewAddr(node, port)
		r.ports[port] = struct{}{}
		r.byAddr[addr] = owner
		return addr, nil
	}

	p, err := r.allocateEphemeralLocked()
	if err != nil {
		return 0, err
	}
	addr := NewAddr(node, p)
	r.byAddr[addr] = owner
	return addr, nil
}

// allocateEphemeralLocked must be called with r.mu held.
func (r *Registry) allocateEphemeralLocked() (uint32, error) {
	const rangeSize = EphemeralHigh - EphemeralLow + 1

	start, err := randomUint32InRange(rangeSize)
	if err != nil {
		return 0, fmt.Errorf("generate random port offset: %w", err)
	}

	for i := uint32(0); i < rangeSize; i++ {
		p := EphemeralLow + (start+i)%rangeSize
		if _, taken := r.ports[p]; !taken {
			r.ports[p] = struct{}{}
			return p, nil
		}
	}

	return 0, ErrPortsExhausted
}

// Release frees addr's port and removes its owner mapping. Releasing an
// address this registry never bound is a no-op.
func (r *Registry) Release(addr Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAddr[addr]; !ok {
		return
	}
	delete(r.byAddr, addr)
	delete(r.ports, addr.Port())
}

// Lookup returns the owner currently bound to addr.
func (r *Registry) Lookup(addr Addr) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byAddr[addr]
	return owner, ok
}

// Rebind atomically moves ownership of addr from whatever held it to owner,
// without touching the port table. This is how a dialer's endpoint
// surrenders its local address to a newly created pipe on conn-ack receipt:
// the endpoint's local addr is removed from the endpoint index and the pipe
// takes over that entry.
func (r *Registry) Rebind(addr Addr, owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAddr[addr] = owner
}

// PortInUse reports whether port is currently reserved by any owner.
func (r *Registry) PortInUse(port uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, taken := r.ports[port]
	return taken
}

func randomUint32InRange(n uint32) (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]) % n, nil
}
