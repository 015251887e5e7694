package ztproto

import "github.com/ztpipe/ztpipe/internal/addrbook"
import "github.com/ztpipe/ztpipe/internal/wire"

// FrameSender is the Overlay Host's send_frame contract: the only
// capability an Endpoint or Pipe holds for emitting wire frames.
// internal/overlay.Host implements this; accepting it as an interface here
// keeps this package free of any dependency on socket I/O or the overlay
// library binding, avoiding an import cycle between the two packages.
//
// SendFrame is fire-and-forget and non-blocking: failures inside the
// overlay library are recorded by the Host but never surfaced back through
// this call, and it returns no completion.
type FrameSender interface {
	SendFrame(nwid uint64, local, remote addrbook.Addr, f wire.Frame)
}
