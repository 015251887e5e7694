package ztproto

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/wire"
)

// ReceiveCompletion is invoked exactly once, synchronously, to complete a
// pending receive() operation.
type ReceiveCompletion func(msg []byte, err error)

// Pipe is an established conversation.
type Pipe struct {
	localAddr    addrbook.Addr
	remoteAddr   addrbook.Addr
	nwid         uint64
	mtu          uint32
	recvMaxSize  uint32
	peerProtocol uint16
	state        PipeState
	nextMsgID    uint16

	reasm       *Reassembler
	pendingRecv ReceiveCompletion

	sender FrameSender
	logger *slog.Logger
}

func newPipe(local, remote addrbook.Addr, nwid uint64, mtu, recvMaxSize uint32, peerProtocol uint16, sender FrameSender, logger *slog.Logger) *Pipe {
	return &Pipe{
		localAddr:    local,
		remoteAddr:   remote,
		nwid:         nwid,
		mtu:          mtu,
		recvMaxSize:  recvMaxSize,
		peerProtocol: peerProtocol,
		state:        PipeLive,
		nextMsgID:    1,
		reasm:        NewReassembler(),
		sender:       sender,
		logger:       logger,
	}
}

func (p *Pipe) LocalAddr() addrbook.Addr { return p.localAddr }
func (p *Pipe) RemoteAddr() addrbook.Addr { return p.remoteAddr }
func (p *Pipe) State() PipeState          { return p.state }
func (p *Pipe) PeerProtocol() uint16      { return p.peerProtocol }
func (p *Pipe) NWID() uint64              { return p.nwid }

func (p *Pipe) fragSize() int { return int(p.mtu) - wire.DataHeaderSize }

func (p *Pipe) allocMsgID() uint16 {
	id := p.nextMsgID
	p.nextMsgID++
	if p.nextMsgID == 0 {
		p.nextMsgID = 1 // skip zero on wrap
	}
	return id
}

// Send fragments msg and emits it as a sequence of data/data-more frames.
func (p *Pipe) Send(msg []byte) (int, error) {
	if p.state != PipeLive {
		return 0, ErrClosed
	}

	fragsz := p.fragSize()
	if fragsz <= 0 {
		return 0, fmt.Errorf("pipe send: %w: mtu too small for data header", ErrProtocolError)
	}
	if len(msg) >= 0xfffe*fragsz {
		return 0, ErrMessageTooLarge
	}

	nFrags := (len(msg) + fragsz - 1) / fragsz
	if nFrags == 0 {
		nFrags = 1
	}
	msgID := p.allocMsgID()

	for i := 0; i < nFrags; i++ {
		start := i * fragsz
		end := start + fragsz
		if end > len(msg) {
			end = len(msg)
		}
		op := wire.OpDataMore
		if i == nFrags-1 {
			op = wire.OpData
		}
		p.sender.SendFrame(p.nwid, p.localAddr, p.remoteAddr, wire.Frame{
			Op:      op,
			DstPort: p.remoteAddr.Port(),
			SrcPort: p.localAddr.Port(),
			Data: wire.DataHeader{
				MsgID:    msgID,
				FragSize: uint16(fragsz),
				FragNo:   uint16(i),
				NFrags:   uint16(nFrags),
				Payload:  msg[start:end],
			},
		})
	}
	return len(msg), nil
}

// Receive registers complete to be invoked with the next ready message, or
// invokes it immediately if one is already reassembled.
func (p *Pipe) Receive(complete ReceiveCompletion) {
	if p.state != PipeLive {
		complete(nil, ErrClosed)
		return
	}
	if msg, ok := p.reasm.TakeReady(); ok {
		complete(msg, nil)
		return
	}
	p.pendingRecv = complete
}

// IngestData applies one data/data-more frame's header and payload.
func (p *Pipe) IngestData(now time.Time, d wire.DataHeader) error {
	_, ready, err := p.reasm.Ingest(now, d.MsgID, d.FragSize, d.FragNo, d.NFrags, d.Payload, p.recvMaxSize)
	if err != nil {
		return err
	}
	if ready && p.pendingRecv != nil {
		msg, _ := p.reasm.TakeReady()
		c := p.pendingRecv
		p.pendingRecv = nil
		c(msg, nil)
	}
	return nil
}

// IngestPingReq answers a liveness probe by replying with ping-ack.
func (p *Pipe) IngestPingReq() {
	p.sender.SendFrame(p.nwid, p.localAddr, p.remoteAddr, wire.Frame{
		Op: wire.OpPingAck, DstPort: p.remoteAddr.Port(), SrcPort: p.localAddr.Port(),
	})
}

// IngestDiscReq handles a peer-initiated teardown: if a user-receive op is
// pending, it fails with closed, and the pipe is marked closed.
func (p *Pipe) IngestDiscReq() {
	res := ApplyPipeEvent(p.state, PipeEventRemoteDisconnect)
	p.state = res.NewState
	p.failPending(ErrClosed)
}

// CloseWithError transitions the pipe to closing after a fatal protocol
// violation.
func (p *Pipe) CloseWithError(kind Kind) {
	res := ApplyPipeEvent(p.state, PipeEventProtocolError)
	p.state = res.NewState
	p.failPending(NewError(kind, "pipe closed by protocol error"))
}

// Close tears the pipe down explicitly, emitting a best-effort disc-req.
func (p *Pipe) Close() {
	res := ApplyPipeEvent(p.state, PipeEventClose)
	p.state = res.NewState
	p.failPending(ErrClosed)
	p.sender.SendFrame(p.nwid, p.localAddr, p.remoteAddr, wire.Frame{
		Op: wire.OpDiscReq, DstPort: p.remoteAddr.Port(), SrcPort: p.localAddr.Port(),
	})
}

func (p *Pipe) failPending(err error) {
	if p.pendingRecv != nil {
		c := p.pendingRecv
		p.pendingRecv = nil
		c(nil, err)
	}
}

// release finalizes teardown once resources (registry entries, reassembly
// slots) have been freed by the Manager.
func (p *Pipe) release() {
	res := ApplyPipeEvent(p.state, PipeEventResourcesReleased)
	p.state = res.NewState
	p.reasm = nil
}
