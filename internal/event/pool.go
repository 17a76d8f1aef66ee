package event

import (
	"sync"

	"feed_go/internal/domain"
)

// packetPool recycles Packets between the input reader and the workers.
// Every stage that consumes a packet must hand it back exactly once.
//
// Usage:
//
//	p := AcquirePacket()
//	p.Set(datagram)
//	// ... push p, the consumer calls ReleasePacket(p) ...
var packetPool = sync.Pool{
	New: func() interface{} {
		return &domain.Packet{}
	},
}

// AcquirePacket gets an empty Packet from the pool.
func AcquirePacket() *domain.Packet {
	return packetPool.Get().(*domain.Packet)
}

// ReleasePacket resets p and returns it to the pool.
func ReleasePacket(p *domain.Packet) {
	if p == nil {
		return
	}
	p.Reset()
	packetPool.Put(p)
}

// ClonePacket copies b into a pooled Packet.
func ClonePacket(b []byte) *domain.Packet {
	p := AcquirePacket()
	p.Set(b)
	return p
}

// Warmup pre-allocates packets so the first bursts after startup do not
// hit the allocator.
func Warmup(n int) {
	if n <= 0 {
		n = 1000
	}
	ps := make([]*domain.Packet, 0, n)
	for i := 0; i < n; i++ {
		ps = append(ps, AcquirePacket())
	}
	for _, p := range ps {
		ReleasePacket(p)
	}
}
