package fast

import (
	"fmt"

	"feed_go/internal/domain"
)

// maxIntBytes bounds a stop-bit encoded 64-bit integer.
const maxIntBytes = 10

type reader struct {
	b   []byte
	off int
}

func (r *reader) next() (byte, error) {
	if r.off >= len(r.b) {
		return 0, domain.ErrShortPacket
	}
	c := r.b[r.off]
	r.off++
	return c, nil
}

// u64 reads a stop-bit encoded unsigned integer. A nullable zero is null
// and every other nullable value is stored plus one.
func (r *reader) u64(nullable bool) (uint64, bool, error) {
	var v uint64
	for i := 0; ; i++ {
		if i == maxIntBytes {
			return 0, false, fmt.Errorf("integer overflow at offset %d", r.off)
		}
		c, err := r.next()
		if err != nil {
			return 0, false, err
		}
		v = v<<7 | uint64(c&0x7f)
		if c&0x80 != 0 {
			break
		}
	}
	if nullable {
		if v == 0 {
			return 0, true, nil
		}
		v--
	}
	return v, false, nil
}

// i64 reads a stop-bit encoded two's complement integer. The sign is bit 6
// of the first byte. Nullable non-negative values are stored plus one.
func (r *reader) i64(nullable bool) (int64, bool, error) {
	var v int64
	for i := 0; ; i++ {
		if i == maxIntBytes {
			return 0, false, fmt.Errorf("integer overflow at offset %d", r.off)
		}
		c, err := r.next()
		if err != nil {
			return 0, false, err
		}
		if i == 0 && c&0x40 != 0 {
			v = -1
		}
		v = v<<7 | int64(c&0x7f)
		if c&0x80 != 0 {
			break
		}
	}
	if nullable {
		if v == 0 {
			return 0, true, nil
		}
		if v > 0 {
			v--
		}
	}
	return v, false, nil
}

// ascii reads a stop-bit terminated ASCII string.
func (r *reader) ascii(nullable bool) (string, bool, error) {
	start := r.off
	for {
		c, err := r.next()
		if err != nil {
			return "", false, err
		}
		if c&0x80 != 0 {
			break
		}
	}
	raw := r.b[start:r.off]
	last := raw[len(raw)-1] & 0x7f

	switch {
	case len(raw) == 1 && last == 0:
		return "", nullable, nil
	case len(raw) == 2 && raw[0] == 0 && last == 0:
		if nullable {
			return "", false, nil
		}
		return "\x00", false, nil
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	buf[len(buf)-1] = last
	return string(buf), false, nil
}

// bytes reads a length-prefixed byte vector.
func (r *reader) bytes(nullable bool) ([]byte, bool, error) {
	n, null, err := r.u64(nullable)
	if err != nil || null {
		return nil, null, err
	}
	if uint64(len(r.b)-r.off) < n {
		return nil, false, domain.ErrShortPacket
	}
	out := make([]byte, n)
	copy(out, r.b[r.off:])
	r.off += int(n)
	return out, false, nil
}

// pmap is a presence map: seven bits per stop-bit byte, most significant
// first. Bits past the encoded length read as zero.
type pmap struct {
	bits []byte
	pos  int
}

func (r *reader) pmap() (*pmap, error) {
	start := r.off
	for {
		c, err := r.next()
		if err != nil {
			return nil, err
		}
		if c&0x80 != 0 {
			break
		}
	}
	return &pmap{bits: r.b[start:r.off]}, nil
}

func (p *pmap) next() bool {
	i := p.pos
	p.pos++
	if i/7 >= len(p.bits) {
		return false
	}
	return p.bits[i/7]&(0x40>>(i%7)) != 0
}
