// Package ztproto implements the adapter protocol engine: the Endpoint and
// Pipe finite state machines, connect-request retry and backlog handling,
// fragment reassembly, and the frame demultiplexer that ties them to one
// Overlay Host. It depends on internal/wire for the frame codec and
// internal/addrbook for address allocation, and is itself depended on by
// internal/overlay through the FrameSender interface rather than the other
// way around.
package ztproto
