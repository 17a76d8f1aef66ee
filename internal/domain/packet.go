package domain

const (
	// BufSize is the fixed capacity of a Packet.
	BufSize = 1024
	// SkipBytes precedes the broadcast header inside every NSE message.
	SkipBytes = 8
)

// Packet is the unit moved through every queue: a fixed buffer and the
// number of valid bytes in it. A Packet has exactly one owner at a time;
// handing it to a queue or slot transfers ownership.
type Packet struct {
	Buf [BufSize]byte
	Len int
}

// NewPacket copies b into a fresh Packet, truncating at BufSize.
func NewPacket(b []byte) *Packet {
	p := &Packet{}
	p.Len = copy(p.Buf[:], b)
	return p
}

// Bytes returns the valid portion of the buffer.
func (p *Packet) Bytes() []byte {
	return p.Buf[:p.Len]
}

// Set replaces the packet contents with b.
func (p *Packet) Set(b []byte) {
	p.Len = copy(p.Buf[:], b)
}

// Reset zeroes the valid length. The buffer is not cleared.
func (p *Packet) Reset() {
	p.Len = 0
}
