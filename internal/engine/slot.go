package engine

import (
	"sync/atomic"

	"feed_go/internal/domain"
)

// Slot holds the newest pending packet of one coalescing key. Put and Take
// hand ownership over atomically, so a packet is only ever held by one
// party. The running flag keeps at most one Work for the key outstanding.
type Slot struct {
	Token   int32
	latest  atomic.Pointer[domain.Packet]
	running atomic.Bool
	work    *Work
}

func newSlot(token int32) *Slot {
	s := &Slot{Token: token}
	s.work = &Work{Type: domain.Token(token), slot: s}
	return s
}

// Put installs p and returns the packet it displaced, if any. The caller
// owns the returned packet.
func (s *Slot) Put(p *domain.Packet) *domain.Packet {
	return s.latest.Swap(p)
}

// Take empties the slot and returns what it held.
func (s *Slot) Take() *domain.Packet {
	return s.latest.Swap(nil)
}

// Pending reports whether a packet is waiting.
func (s *Slot) Pending() bool {
	return s.latest.Load() != nil
}

// Acquire marks the key as having an outstanding Work.
func (s *Slot) Acquire() bool { return s.running.CompareAndSwap(false, true) }

// Release clears the outstanding flag.
func (s *Slot) Release() { s.running.Store(false) }

// Running reports whether a Work for this key is outstanding.
func (s *Slot) Running() bool { return s.running.Load() }
