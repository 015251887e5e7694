package ztproto

import (
	"fmt"
	"time"
)

// The fragment reassembly buffer: a small, fixed-size, per-pipe set of
// in-progress message buffers. Bounded at ReassemblySlots slots; any slot
// older than ReassemblyStaleAfter is evicted when the next fragment is
// ingested, regardless of completion state, so one slow or lost sender cannot starve
// reassembly of unrelated messages.
const (
	// ReassemblySlots is the number of messages a pipe can reassemble
	// concurrently.
	ReassemblySlots = 2

	// ReassemblyStaleAfter: a slot older than this is reset when the next
	// fragment is ingested, before a slot is selected for it.
	ReassemblyStaleAfter = 1 * time.Second
)

type fragmentSlot struct {
	inUse    bool
	ready    bool
	arrival  time.Time
	msgID    uint16
	nFrags   uint16
	fragSize uint16
	missing  []byte // bitmap, 1 bit per fragment, 1 = still missing
	buf      []byte
}

func (s *fragmentSlot) reset() {
	*s = fragmentSlot{}
}

func (s *fragmentSlot) bitClear(fragNo uint16) bool {
	byteIdx, bit := fragNo/8, fragNo%8
	return s.missing[byteIdx]&(1<<bit) == 0
}

func (s *fragmentSlot) clearBit(fragNo uint16) {
	byteIdx, bit := fragNo/8, fragNo%8
	s.missing[byteIdx] &^= 1 << bit
}

func (s *fragmentSlot) allClear() bool {
	for _, b := range s.missing {
		if b != 0 {
			return false
		}
	}
	return true
}

// Reassembler is the fixed-capacity fragment reassembly buffer owned by one
// Pipe.
type Reassembler struct {
	slots [ReassemblySlots]fragmentSlot
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler { return &Reassembler{} }

// Ingest applies one data/data-more fragment arriving at time now. It
// returns the reassembled message and true when the fragment completes a
// message; the caller is responsible for immediate delivery or queuing per
// the first-ready-slot (not oldest) delivery rule.
//
// receiveCap is the pipe's configured receive-message cap; fragSize is the
// physical-MTU-derived fragment size negotiated for this pipe. An error
// return always means "close the pipe with protocol-error" or "reject the
// message as message-too-large"; it is never a silent-drop condition once
// a pipe is established.
func (r *Reassembler) Ingest(
	now time.Time,
	msgID, fragSize, fragNo, nFrags uint16,
	payload []byte,
	receiveCap uint32,
) (message []byte, ready bool, err error) {
	if nFrags == 0 || fragSize == 0 {
		return nil, false, fmt.Errorf("reassembly: %w: zero n_frags or frag_size", ErrProtocolError)
	}
	if fragNo >= nFrags {
		return nil, false, fmt.Errorf("reassembly: %w: frag_no %d >= n_frags %d", ErrProtocolError, fragNo, nFrags)
	}
	if uint32(nFrags)*uint32(fragSize) >= receiveCap+uint32(fragSize) {
		return nil, false, fmt.Errorf("reassembly: %w: message exceeds receive cap", ErrMessageTooLarge)
	}

	r.evictStale(now)

	slot := r.selectSlot(now, msgID)
	if !slot.inUse || slot.msgID != msgID {
		r.initSlot(slot, now, msgID, nFrags, fragSize)
	} else if slot.nFrags != nFrags || slot.fragSize != fragSize {
		return nil, false, fmt.Errorf("reassembly: %w: n_frags/frag_size changed mid-message", ErrProtocolError)
	}

	isFinal := fragNo == nFrags-1
	if !isFinal && uint16(len(payload)) != fragSize {
		slot.reset()
		return nil, false, fmt.Errorf("reassembly: %w: non-final fragment length mismatch", ErrProtocolError)
	}

	if slot.bitClear(fragNo) {
		// Duplicate fragment; drop without error.
		return nil, false, nil
	}

	off := int(fragNo) * int(fragSize)
	n := copy(slot.buf[off:], payload)
	if isFinal {
		total := off + n
		if uint32(total) > receiveCap {
			slot.reset()
			return nil, false, fmt.Errorf("reassembly: %w: assembled message exceeds receive cap", ErrMessageTooLarge)
		}
		slot.buf = slot.buf[:total]
	}
	slot.clearBit(fragNo)

	if !slot.allClear() {
		return nil, false, nil
	}

	slot.ready = true
	return slot.buf, true, nil
}

// TakeReady returns and clears the first ready slot's message, in slot
// order: first-ready-slot, not oldest.
func (r *Reassembler) TakeReady() (message []byte, ok bool) {
	for i := range r.slots {
		if r.slots[i].ready {
			msg := r.slots[i].buf
			r.slots[i].reset()
			return msg, true
		}
	}
	return nil, false
}

func (r *Reassembler) evictStale(now time.Time) {
	for i := range r.slots {
		s := &r.slots[i]
		if s.inUse && now.Sub(s.arrival) > ReassemblyStaleAfter {
			s.reset()
		}
	}
}

// selectSlot returns the slot matching msgID if one is in use, else the
// slot with the oldest arrival time.
func (r *Reassembler) selectSlot(now time.Time, msgID uint16) *fragmentSlot {
	for i := range r.slots {
		if r.slots[i].inUse && r.slots[i].msgID == msgID {
			return &r.slots[i]
		}
	}

	oldest := &r.slots[0]
	for i := 1; i < len(r.slots); i++ {
		s := &r.slots[i]
		if !s.inUse {
			return s
		}
		if s.arrival.Before(oldest.arrival) {
			oldest = s
		}
	}
	return oldest
}

func (r *Reassembler) initSlot(s *fragmentSlot, now time.Time, msgID, nFrags, fragSize uint16) {
	bitmapLen := (nFrags + 7) / 8
	missing := make([]byte, bitmapLen)
	for i := range missing {
		missing[i] = 0xff
	}
	// Mask the final byte down to exactly nFrags bits set.
	if rem := nFrags % 8; rem != 0 {
		missing[bitmapLen-1] = byte(1<<rem - 1)
	}

	*s = fragmentSlot{
		inUse:    true,
		arrival:  now,
		msgID:    msgID,
		nFrags:   nFrags,
		fragSize: fragSize,
		missing:  missing,
		buf:      make([]byte, int(nFrags)*int(fragSize)),
	}
}
