package ztproto

import "github.com/ztpipe/ztpipe/internal/addrbook"

// StateChange is emitted when the Manager creates a Pipe (NewState "live")
// and when it tears one down. Endpoint transitions and a Pipe's move into
// closing are not reported on their own. External consumers (metrics, operator-facing logging) subscribe through
// Manager.OnStateChange; this decouples ztproto from internal/ztmetrics,
// avoiding an import cycle.
type StateChange struct {
	Kind     string // always "pipe" (Endpoint transitions are not reported)
	NWID     uint64
	Addr     addrbook.Addr
	OldState string
	NewState string
}

// StateCallback is invoked synchronously, under the Manager's lock, for
// every StateChange. Long-running work must be dispatched asynchronously
// to avoid blocking the engine.
type StateCallback func(change StateChange)
