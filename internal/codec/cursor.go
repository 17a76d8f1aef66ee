// Package codec decodes exchange broadcast messages into normalized
// records. All exchange wire formats are big-endian.
package codec

import (
	"encoding/binary"
	"math"

	"feed_go/internal/domain"
)

var be = binary.BigEndian

// cursor reads big-endian fields sequentially. The first out-of-range read
// latches ErrShortPacket and every later read returns zero.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.b) {
		c.err = domain.ErrShortPacket
		return nil
	}
	p := c.b[c.off : c.off+n]
	c.off += n
	return p
}

func (c *cursor) skip(n int) { c.take(n) }

func (c *cursor) u8() uint8 {
	if p := c.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (c *cursor) i16() int16 {
	if p := c.take(2); p != nil {
		return int16(be.Uint16(p))
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if p := c.take(2); p != nil {
		return be.Uint16(p)
	}
	return 0
}

func (c *cursor) i32() int32 {
	if p := c.take(4); p != nil {
		return int32(be.Uint32(p))
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if p := c.take(4); p != nil {
		return be.Uint32(p)
	}
	return 0
}

func (c *cursor) i64() int64 {
	if p := c.take(8); p != nil {
		return int64(be.Uint64(p))
	}
	return 0
}

func (c *cursor) f64() float64 {
	if p := c.take(8); p != nil {
		return math.Float64frombits(be.Uint64(p))
	}
	return 0
}

func (c *cursor) array(dst []byte) {
	if p := c.take(len(dst)); p != nil {
		copy(dst, p)
	}
}
