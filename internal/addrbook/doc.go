// Package addrbook implements the adapter's address space: the 64-bit
// conversation address (node id || port), ephemeral port allocation, the
// dual port/address registry that demultiplexes incoming frames to an
// endpoint or pipe owner, and the MAC-address scrambling used to place
// conversation addresses onto the overlay's virtual Ethernet segment.
package addrbook
