// Package overlay implements the Overlay Host: it owns the dual v4/v6 UDP
// sockets, the background scheduler, and the persistence callbacks an
// overlay-library Node needs, and it bridges wire-format UDP datagrams
// between that Node and the ztproto protocol engine.
//
// The overlay library itself is consumed here purely through the Node
// interface; Host implements Callbacks, the other half of that
// collaboration, so a test double can stand in for a real ZeroTier binding.
package overlay
