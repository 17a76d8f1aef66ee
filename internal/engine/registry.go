package engine

import (
	"sync"

	"feed_go/internal/domain"
)

// Registry owns all per-queue and per-key dispatch state. Entries are
// created on first sight and never removed, so handles stay valid for the
// life of the process.
type Registry struct {
	lanes  [domain.QueueCount]*Lane[*domain.Packet]
	tokens sync.Map // int32 -> *Slot
	books  sync.Map // int64 -> *BookLane
}

// NewRegistry builds the fixed FIFO lane array.
func NewRegistry() *Registry {
	r := &Registry{}
	for _, k := range []domain.WorkKind{domain.BseCompressed, domain.BseUncompressed, domain.NseUncompressed} {
		wt := domain.Of(k)
		id, _ := wt.QueueID()
		r.lanes[id] = newPacketLane(wt)
	}
	for seg := 0; seg < 256; seg++ {
		wt := domain.Segment(uint8(seg))
		id, _ := wt.QueueID()
		r.lanes[id] = newPacketLane(wt)
	}
	return r
}

// Lane returns the FIFO lane for a queue id.
func (r *Registry) Lane(id int) *Lane[*domain.Packet] {
	return r.lanes[id]
}

// Slot returns the coalescing slot for token, creating it if absent. Under
// a race the first stored slot wins and the loser's allocation is dropped.
func (r *Registry) Slot(token int32) *Slot {
	if v, ok := r.tokens.Load(token); ok {
		return v.(*Slot)
	}
	v, _ := r.tokens.LoadOrStore(token, newSlot(token))
	return v.(*Slot)
}

// Book returns the book lane for an MCX security, creating it if absent.
func (r *Registry) Book(id int64) *BookLane {
	if v, ok := r.books.Load(id); ok {
		return v.(*BookLane)
	}
	v, _ := r.books.LoadOrStore(id, newBookLane(id))
	return v.(*BookLane)
}

// RangeBooks calls fn for every known book lane until fn returns false.
func (r *Registry) RangeBooks(fn func(*BookLane) bool) {
	r.books.Range(func(_, v any) bool {
		return fn(v.(*BookLane))
	})
}

// RegistryStats summarizes the registry for periodic logging.
type RegistryStats struct {
	BusyLanes   int
	PendingFIFO int
	Tokens      int
	Books       int
	PendingBook int
}

// Stats walks the registry. It is O(keys) and meant for occasional use.
func (r *Registry) Stats() RegistryStats {
	var st RegistryStats
	for _, l := range r.lanes {
		if l.Busy() {
			st.BusyLanes++
		}
		st.PendingFIFO += l.Len()
	}
	r.tokens.Range(func(_, _ any) bool {
		st.Tokens++
		return true
	})
	r.books.Range(func(_, v any) bool {
		st.Books++
		st.PendingBook += v.(*BookLane).Len()
		return true
	})
	return st
}
