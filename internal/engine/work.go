package engine

import "feed_go/internal/domain"

// Work is a schedulable reference to one lane, slot or book lane. Each of
// those owns a single Work that is re-enqueued rather than reallocated;
// Seq is stamped every time it is enqueued.
type Work struct {
	Type domain.WorkType
	Seq  uint64

	lane *Lane[*domain.Packet]
	slot *Slot
	book *BookLane
}
