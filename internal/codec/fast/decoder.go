package fast

import (
	"errors"
	"fmt"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

// maxSequence bounds a decoded sequence length.
const maxSequence = 4096

// Decimal exponents are limited to [-63, 63].
const maxExponent = 63

var (
	errMandatoryAbsent = errors.New("mandatory field has no value")
	errEmptyBase       = errors.New("operator base is empty")
	errExponentRange   = errors.New("decimal exponent out of range")
)

func checkExponent(exp int64) error {
	if exp < -maxExponent || exp > maxExponent {
		return fmt.Errorf("%w: %d", errExponentRange, exp)
	}
	return nil
}

type decValue struct {
	exp  int64
	mant int64
}

type entry struct {
	v     any
	empty bool
}

// Decoder decodes a FAST stream. It keeps the global dictionary between
// messages and is not safe for concurrent use.
type Decoder struct {
	ts      *Templates
	dict    map[string]entry
	lastTID uint32
	haveTID bool
}

// NewDecoder creates a decoder for a template set.
func NewDecoder(ts *Templates) *Decoder {
	return &Decoder{ts: ts, dict: make(map[string]entry)}
}

// Reset clears the dictionary and the previous template id.
func (d *Decoder) Reset() {
	clear(d.dict)
	d.lastTID = 0
	d.haveTID = false
}

// Decode decodes one message from the front of b and returns it with the
// number of bytes consumed.
func (d *Decoder) Decode(b []byte) (*Message, int, error) {
	r := &reader{b: b}
	pm, err := r.pmap()
	if err != nil {
		return nil, 0, fmt.Errorf("presence map: %w", err)
	}

	if pm.next() {
		tid, _, err := r.u64(false)
		if err != nil {
			return nil, 0, fmt.Errorf("template id: %w", err)
		}
		d.lastTID = uint32(tid)
		d.haveTID = true
	} else if !d.haveTID {
		return nil, 0, fmt.Errorf("template id: %w", errMandatoryAbsent)
	}

	t, ok := d.ts.Lookup(d.lastTID)
	if !ok {
		return nil, 0, fmt.Errorf("template %d: %w", d.lastTID, domain.ErrUnknownTemplate)
	}
	fields, err := d.fields(r, pm, t.Fields)
	if err != nil {
		return nil, 0, fmt.Errorf("template %s(%d): %w", t.Name, t.ID, err)
	}
	return &Message{TemplateID: t.ID, Name: t.Name, Fields: fields}, r.off, nil
}

func (d *Decoder) fields(r *reader, pm *pmap, ins []*Instruction) (Group, error) {
	g := make(Group, len(ins))
	for _, in := range ins {
		v, ok, err := d.field(r, pm, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name, err)
		}
		if ok {
			g[in.Name] = v
		}
	}
	return g, nil
}

func (d *Decoder) field(r *reader, pm *pmap, in *Instruction) (any, bool, error) {
	switch in.Kind {
	case KindSequence:
		return d.sequence(r, pm, in)
	case KindGroup:
		return d.group(r, pm, in)
	case KindDecimal:
		if in.Exponent != nil {
			return d.composite(r, pm, in)
		}
	}
	v, ok, err := d.scalar(r, pm, in)
	if !ok || err != nil {
		return nil, false, err
	}
	if dv, isDec := v.(decValue); isDec {
		return decimal.New(dv.mant, int32(dv.exp)), true, nil
	}
	return v, true, nil
}

func (d *Decoder) sequence(r *reader, pm *pmap, in *Instruction) (any, bool, error) {
	lv, ok, err := d.scalar(r, pm, in.Length)
	if !ok || err != nil {
		return nil, false, err
	}
	n := lv.(uint64)
	if n > maxSequence {
		return nil, false, fmt.Errorf("sequence length %d exceeds %d", n, maxSequence)
	}
	items := make([]Group, 0, n)
	for i := uint64(0); i < n; i++ {
		epm := &pmap{}
		if in.pmap {
			if epm, err = r.pmap(); err != nil {
				return nil, false, err
			}
		}
		g, err := d.fields(r, epm, in.Fields)
		if err != nil {
			return nil, false, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, g)
	}
	return items, true, nil
}

func (d *Decoder) group(r *reader, pm *pmap, in *Instruction) (any, bool, error) {
	if in.Optional && !pm.next() {
		return nil, false, nil
	}
	gpm := &pmap{}
	if in.pmap {
		var err error
		if gpm, err = r.pmap(); err != nil {
			return nil, false, err
		}
	}
	g, err := d.fields(r, gpm, in.Fields)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// composite decodes a decimal whose exponent and mantissa carry their own
// operators. An absent exponent means the mantissa is not on the wire.
func (d *Decoder) composite(r *reader, pm *pmap, in *Instruction) (any, bool, error) {
	exp, ok, err := d.scalar(r, pm, in.Exponent)
	if !ok || err != nil {
		return nil, false, err
	}
	if err := checkExponent(exp.(int64)); err != nil {
		return nil, false, err
	}
	mant, ok, err := d.scalar(r, pm, in.Mantissa)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("mantissa: %w", errMandatoryAbsent)
	}
	return decimal.New(mant.(int64), int32(exp.(int64))), true, nil
}

func (d *Decoder) scalar(r *reader, pm *pmap, in *Instruction) (any, bool, error) {
	switch in.Op {
	case OpNone:
		v, null, err := d.read(r, in, in.Optional)
		if err != nil || null {
			return nil, false, err
		}
		return v, true, nil

	case OpConstant:
		if in.Optional && !pm.next() {
			return nil, false, nil
		}
		return in.Initial, true, nil

	case OpDefault:
		if pm.next() {
			v, null, err := d.read(r, in, in.Optional)
			if err != nil || null {
				return nil, false, err
			}
			return v, true, nil
		}
		if in.Initial == nil {
			if in.Optional {
				return nil, false, nil
			}
			return nil, false, errMandatoryAbsent
		}
		return in.Initial, true, nil

	case OpCopy, OpIncrement, OpTail:
		if pm.next() {
			var v any
			var null bool
			var err error
			if in.Op == OpTail {
				v, null, err = d.tail(r, in)
			} else {
				v, null, err = d.read(r, in, in.Optional)
			}
			if err != nil {
				return nil, false, err
			}
			if null {
				d.dict[in.Key] = entry{empty: true}
				return nil, false, nil
			}
			d.dict[in.Key] = entry{v: v}
			return v, true, nil
		}
		return d.previous(in)

	case OpDelta:
		return d.delta(r, in)
	}
	return nil, false, fmt.Errorf("unknown operator %d", in.Op)
}

// previous resolves a copy, increment or tail field whose bit is clear.
func (d *Decoder) previous(in *Instruction) (any, bool, error) {
	prev, ok := d.dict[in.Key]
	switch {
	case !ok:
		if in.Initial == nil {
			if in.Optional {
				d.dict[in.Key] = entry{empty: true}
				return nil, false, nil
			}
			return nil, false, errMandatoryAbsent
		}
		d.dict[in.Key] = entry{v: in.Initial}
		return in.Initial, true, nil
	case prev.empty:
		if in.Optional {
			return nil, false, nil
		}
		return nil, false, errEmptyBase
	}

	v := prev.v
	if in.Op == OpIncrement {
		switch x := v.(type) {
		case uint64:
			v = x + 1
		case int64:
			v = x + 1
		}
		d.dict[in.Key] = entry{v: v}
	}
	return v, true, nil
}

func (d *Decoder) base(in *Instruction) (any, error) {
	if prev, ok := d.dict[in.Key]; ok {
		if prev.empty {
			return nil, errEmptyBase
		}
		return prev.v, nil
	}
	if in.Initial != nil {
		return in.Initial, nil
	}
	switch {
	case in.Kind.unsigned():
		return uint64(0), nil
	case in.Kind.signed():
		return int64(0), nil
	case in.Kind == KindDecimal:
		return decValue{}, nil
	case in.Kind == KindBytes:
		return []byte{}, nil
	default:
		return "", nil
	}
}

func (d *Decoder) delta(r *reader, in *Instruction) (any, bool, error) {
	diff, null, err := r.i64(in.Optional)
	if err != nil || null {
		return nil, false, err
	}
	b, err := d.base(in)
	if err != nil {
		return nil, false, err
	}

	var v any
	switch x := b.(type) {
	case uint64:
		v = uint64(int64(x) + diff)
	case int64:
		v = x + diff
	case decValue:
		mdiff, _, err := r.i64(false)
		if err != nil {
			return nil, false, err
		}
		if err := checkExponent(x.exp + diff); err != nil {
			return nil, false, err
		}
		v = decValue{exp: x.exp + diff, mant: x.mant + mdiff}
	case string:
		s, err := d.deltaBody(r, in)
		if err != nil {
			return nil, false, err
		}
		out, err := applySubtraction([]byte(x), s, diff)
		if err != nil {
			return nil, false, err
		}
		v = string(out)
	case []byte:
		s, err := d.deltaBody(r, in)
		if err != nil {
			return nil, false, err
		}
		if v, err = applySubtraction(x, s, diff); err != nil {
			return nil, false, err
		}
	}
	d.dict[in.Key] = entry{v: v}
	return v, true, nil
}

func (d *Decoder) deltaBody(r *reader, in *Instruction) ([]byte, error) {
	if in.Kind == KindASCII {
		s, _, err := r.ascii(false)
		return []byte(s), err
	}
	b, _, err := r.bytes(false)
	return b, err
}

// applySubtraction removes |sub| bytes from the tail of base, or from the
// front when sub is negative (excess-one encoded), and joins the delta.
func applySubtraction(base, delta []byte, sub int64) ([]byte, error) {
	front := sub < 0
	if front {
		sub = -sub - 1
	}
	if sub > int64(len(base)) {
		return nil, fmt.Errorf("subtraction length %d exceeds base %d", sub, len(base))
	}
	out := make([]byte, 0, int(int64(len(base))-sub)+len(delta))
	if front {
		out = append(out, delta...)
		return append(out, base[sub:]...), nil
	}
	out = append(out, base[:int64(len(base))-sub]...)
	return append(out, delta...), nil
}

func (d *Decoder) tail(r *reader, in *Instruction) (any, bool, error) {
	var t []byte
	switch in.Kind {
	case KindASCII:
		s, null, err := r.ascii(in.Optional)
		if err != nil || null {
			return nil, null, err
		}
		t = []byte(s)
	case KindUnicode, KindBytes:
		b, null, err := r.bytes(in.Optional)
		if err != nil || null {
			return nil, null, err
		}
		t = b
	default:
		return nil, false, fmt.Errorf("tail operator on non-string field")
	}

	b, err := d.base(in)
	if err != nil {
		b = ""
	}
	var base []byte
	switch x := b.(type) {
	case string:
		base = []byte(x)
	case []byte:
		base = x
	}
	var out []byte
	if len(t) >= len(base) {
		out = t
	} else {
		out = append(append([]byte{}, base[:len(base)-len(t)]...), t...)
	}
	if in.Kind == KindBytes {
		return out, false, nil
	}
	return string(out), false, nil
}

// read decodes a raw value of the instruction's type.
func (d *Decoder) read(r *reader, in *Instruction, nullable bool) (any, bool, error) {
	switch in.Kind {
	case KindUInt32, KindUInt64:
		v, null, err := r.u64(nullable)
		if err != nil || null {
			return nil, null, err
		}
		return v, false, nil
	case KindInt32, KindInt64:
		v, null, err := r.i64(nullable)
		if err != nil || null {
			return nil, null, err
		}
		return v, false, nil
	case KindDecimal:
		exp, null, err := r.i64(nullable)
		if err != nil || null {
			return nil, null, err
		}
		if err := checkExponent(exp); err != nil {
			return nil, false, err
		}
		mant, _, err := r.i64(false)
		if err != nil {
			return nil, false, err
		}
		return decValue{exp: exp, mant: mant}, false, nil
	case KindASCII:
		v, null, err := r.ascii(nullable)
		if err != nil || null {
			return nil, null, err
		}
		return v, false, nil
	case KindUnicode:
		b, null, err := r.bytes(nullable)
		if err != nil || null {
			return nil, null, err
		}
		return string(b), false, nil
	case KindBytes:
		v, null, err := r.bytes(nullable)
		if err != nil || null {
			return nil, null, err
		}
		return v, false, nil
	}
	return nil, false, fmt.Errorf("cannot read kind %d", in.Kind)
}
