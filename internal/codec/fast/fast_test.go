package fast

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
)

const testTemplates = `<?xml version="1.0" encoding="UTF-8"?>
<templates xmlns="http://www.fixprotocol.org/ns/fast/td/1.1">
  <template name="Beacon" id="109">
    <string name="MsgType" id="35"><constant value="0"/></string>
    <uInt32 name="MsgSeqNum" id="34"><increment/></uInt32>
    <uInt32 name="SenderCompID" id="49"><copy/></uInt32>
  </template>
  <template name="DepthIncremental" id="94">
    <uInt32 name="MsgSeqNum" id="34"><increment/></uInt32>
    <sequence name="MDIncGrp">
      <length name="NoMDEntries"/>
      <uInt32 name="MDUpdateAction"/>
      <uInt32 name="MDEntryType"><copy/></uInt32>
      <int64 name="SecurityID"><delta/></int64>
      <decimal name="MDEntryPx" presence="optional"><delta/></decimal>
      <decimal name="MDEntrySize" presence="optional"/>
      <uInt32 name="MDPriceLevel" presence="optional"/>
      <group name="TradeEntryGrp" presence="optional">
        <uInt64 name="TradeCondition" presence="optional"/>
      </group>
    </sequence>
  </template>
  <template name="FastReset" id="120"/>
  <template name="Composite" id="7">
    <decimal name="Px">
      <exponent><default value="-2"/></exponent>
      <mantissa><delta/></mantissa>
    </decimal>
    <string name="Sym"><tail/></string>
    <byteVector name="Raw" presence="optional"/>
    <templateRef name="Beacon"/>
  </template>
</templates>`

func encU(v uint64) []byte {
	var groups []byte
	for {
		groups = append([]byte{byte(v & 0x7f)}, groups...)
		v >>= 7
		if v == 0 {
			break
		}
	}
	groups[len(groups)-1] |= 0x80
	return groups
}

func encI(v int64) []byte {
	var groups []byte
	for {
		groups = append([]byte{byte(v & 0x7f)}, groups...)
		sign := v & 0x40
		v >>= 7
		if (v == 0 && sign == 0) || (v == -1 && sign != 0) {
			break
		}
	}
	groups[len(groups)-1] |= 0x80
	return groups
}

func encNU(v uint64) []byte { return encU(v + 1) }

func encNI(v int64) []byte {
	if v >= 0 {
		return encI(v + 1)
	}
	return encI(v)
}

func encA(s string) []byte {
	b := []byte(s)
	b[len(b)-1] |= 0x80
	return b
}

var null = []byte{0x80}

func pm(bits ...bool) []byte {
	n := max(1, (len(bits)+6)/7)
	out := make([]byte, n)
	for i, b := range bits {
		if b {
			out[i/7] |= 0x40 >> (i % 7)
		}
	}
	out[n-1] |= 0x80
	return out
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	ts, err := ParseTemplates(strings.NewReader(testTemplates))
	if err != nil {
		t.Fatalf("ParseTemplates: %v", err)
	}
	if ts.Len() != 4 {
		t.Fatalf("expected 4 templates, got %d", ts.Len())
	}
	return NewDecoder(ts)
}

func TestPrimitives(t *testing.T) {
	t.Run("unsigned", func(t *testing.T) {
		for _, v := range []uint64{0, 1, 127, 128, 16383, 1 << 40} {
			r := &reader{b: encU(v)}
			got, null, err := r.u64(false)
			if err != nil || null || got != v {
				t.Errorf("u64(%d) = %d, %v, %v", v, got, null, err)
			}
		}
	})

	t.Run("signed", func(t *testing.T) {
		for _, v := range []int64{0, 1, -1, 63, 64, -64, -65, 8191, -942755} {
			r := &reader{b: encI(v)}
			got, _, err := r.i64(false)
			if err != nil || got != v {
				t.Errorf("i64(%d) = %d, %v", v, got, err)
			}
		}
	})

	t.Run("nullable", func(t *testing.T) {
		r := &reader{b: cat(null, encNU(0), encNI(-5), encNI(5))}
		if _, isNull, _ := r.u64(true); !isNull {
			t.Error("0x80 should decode as null")
		}
		if v, _, _ := r.u64(true); v != 0 {
			t.Errorf("expected 0, got %d", v)
		}
		if v, _, _ := r.i64(true); v != -5 {
			t.Errorf("expected -5, got %d", v)
		}
		if v, _, _ := r.i64(true); v != 5 {
			t.Errorf("expected 5, got %d", v)
		}
	})

	t.Run("ascii", func(t *testing.T) {
		r := &reader{b: cat(encA("MCX"), null, []byte{0x00, 0x80})}
		if s, _, _ := r.ascii(false); s != "MCX" {
			t.Errorf("expected MCX, got %q", s)
		}
		if _, isNull, _ := r.ascii(true); !isNull {
			t.Error("optional 0x80 should be null")
		}
		if s, isNull, _ := r.ascii(true); isNull || s != "" {
			t.Errorf("optional 0x00 0x80 should be empty, got %q null=%v", s, isNull)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		r := &reader{b: bytes.Repeat([]byte{0x01}, 11)}
		if _, _, err := r.u64(false); err == nil {
			t.Error("expected overflow error")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		r := &reader{b: []byte{0x01, 0x02}}
		if _, _, err := r.u64(false); !errors.Is(err, domain.ErrShortPacket) {
			t.Errorf("expected ErrShortPacket, got %v", err)
		}
	})
}

func TestDecoder_CopyAndIncrement(t *testing.T) {
	d := newTestDecoder(t)
	stream := cat(
		pm(true, true, true), encU(109), encU(5), encU(77),
		pm(false, false, false),
	)

	msg, n, err := d.Decode(stream)
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if msg.Name != "Beacon" || msg.TemplateID != 109 {
		t.Fatalf("unexpected template %s(%d)", msg.Name, msg.TemplateID)
	}
	if s, _ := msg.Fields.String("MsgType"); s != "0" {
		t.Errorf("constant MsgType = %q", s)
	}

	msg, m, err := d.Decode(stream[n:])
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if n+m != len(stream) {
		t.Errorf("consumed %d of %d bytes", n+m, len(stream))
	}
	if v, _ := msg.Fields.Uint("MsgSeqNum"); v != 6 {
		t.Errorf("incremented MsgSeqNum = %d, want 6", v)
	}
	if v, _ := msg.Fields.Uint("SenderCompID"); v != 77 {
		t.Errorf("copied SenderCompID = %d, want 77", v)
	}
}

func TestDecoder_SequenceAndGroup(t *testing.T) {
	d := newTestDecoder(t)
	stream := cat(
		pm(true, true), encU(94), encU(40),
		encU(2),
		// element 1
		pm(true, true), encU(0), encU(1), encI(1000),
		encNI(-2), encI(10050),
		encNI(0), encI(5),
		encNU(1),
		encNU(3),
		// element 2
		pm(false, false), encU(2), encI(1),
		null,
		null,
		encNU(2),
	)

	msg, n, err := d.Decode(stream)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(stream) {
		t.Errorf("consumed %d of %d bytes", n, len(stream))
	}

	grp := msg.Fields.Sequence("MDIncGrp")
	if len(grp) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(grp))
	}

	first := grp[0]
	if id, _ := first.Int("SecurityID"); id != 1000 {
		t.Errorf("SecurityID = %d", id)
	}
	if px, ok := first.Decimal("MDEntryPx"); !ok || !px.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("MDEntryPx = %v", px)
	}
	if sz, _ := first.Decimal("MDEntrySize"); !sz.Equal(decimal.NewFromInt(5)) {
		t.Errorf("MDEntrySize = %v", sz)
	}
	trade, ok := first.Group("TradeEntryGrp")
	if !ok {
		t.Fatal("TradeEntryGrp should be present")
	}
	if c, _ := trade.Uint("TradeCondition"); c != 3 {
		t.Errorf("TradeCondition = %d", c)
	}

	second := grp[1]
	if a, _ := second.Uint("MDUpdateAction"); a != 2 {
		t.Errorf("MDUpdateAction = %d", a)
	}
	if et, _ := second.Uint("MDEntryType"); et != 1 {
		t.Errorf("copied MDEntryType = %d", et)
	}
	if id, _ := second.Int("SecurityID"); id != 1001 {
		t.Errorf("delta SecurityID = %d", id)
	}
	if _, ok := second.Decimal("MDEntryPx"); ok {
		t.Error("null MDEntryPx should be absent")
	}
	if _, ok := second.Group("TradeEntryGrp"); ok {
		t.Error("TradeEntryGrp should be absent")
	}
	if lvl, _ := second.Uint("MDPriceLevel"); lvl != 2 {
		t.Errorf("MDPriceLevel = %d", lvl)
	}
}

func TestDecoder_CompositeTailAndTemplateRef(t *testing.T) {
	d := newTestDecoder(t)
	stream := cat(
		pm(true, false, true, true, true), encU(7),
		encI(12345), encA("ABC"), encNU(2), []byte{0xde, 0xad},
		encU(1), encU(9),
		pm(false, false, true, false, false),
		encI(5), encA("X"), null,
	)

	msg, n, err := d.Decode(stream)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if px, _ := msg.Fields.Decimal("Px"); !px.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("Px = %v", px)
	}
	if raw, _ := msg.Fields.Bytes("Raw"); !bytes.Equal(raw, []byte{0xde, 0xad}) {
		t.Errorf("Raw = %x", raw)
	}
	if v, _ := msg.Fields.Uint("SenderCompID"); v != 9 {
		t.Errorf("inlined SenderCompID = %d", v)
	}

	msg, _, err = d.Decode(stream[n:])
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if px, _ := msg.Fields.Decimal("Px"); !px.Equal(decimal.RequireFromString("123.50")) {
		t.Errorf("delta Px = %v", px)
	}
	if s, _ := msg.Fields.String("Sym"); s != "ABX" {
		t.Errorf("tail Sym = %q", s)
	}
	if _, ok := msg.Fields.Bytes("Raw"); ok {
		t.Error("null Raw should be absent")
	}
	if v, _ := msg.Fields.Uint("MsgSeqNum"); v != 2 {
		t.Errorf("MsgSeqNum = %d", v)
	}
}

func TestDecoder_Errors(t *testing.T) {
	t.Run("unknown template", func(t *testing.T) {
		d := newTestDecoder(t)
		_, _, err := d.Decode(cat(pm(true), encU(555)))
		if !errors.Is(err, domain.ErrUnknownTemplate) {
			t.Errorf("expected ErrUnknownTemplate, got %v", err)
		}
	})

	t.Run("reset forgets template id", func(t *testing.T) {
		d := newTestDecoder(t)
		if _, _, err := d.Decode(cat(pm(true), encU(120))); err != nil {
			t.Fatalf("reset message: %v", err)
		}
		if _, _, err := d.Decode(pm(false)); err != nil {
			t.Fatalf("copied template id should decode: %v", err)
		}
		d.Reset()
		if _, _, err := d.Decode(pm(false)); err == nil {
			t.Error("expected error after Reset")
		}
	})

	t.Run("reset clears dictionary", func(t *testing.T) {
		d := newTestDecoder(t)
		if _, _, err := d.Decode(cat(pm(true, true, true), encU(109), encU(5), encU(77))); err != nil {
			t.Fatal(err)
		}
		d.Reset()
		_, _, err := d.Decode(cat(pm(true, false, false), encU(109)))
		if !errors.Is(err, errMandatoryAbsent) {
			t.Errorf("expected errMandatoryAbsent, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		d := newTestDecoder(t)
		_, _, err := d.Decode(cat(pm(true, true, true), encU(109), encU(5)))
		if !errors.Is(err, domain.ErrShortPacket) {
			t.Errorf("expected ErrShortPacket, got %v", err)
		}
	})

	t.Run("bad xml", func(t *testing.T) {
		if _, err := ParseTemplates(strings.NewReader("<templates><template id=\"x\"/></templates>")); err == nil {
			t.Error("expected parse error for bad id")
		}
		if _, err := ParseTemplates(strings.NewReader(`<templates><template id="1"><templateRef name="nope"/></template></templates>`)); err == nil {
			t.Error("expected error for unknown templateRef")
		}
	})
}

func TestLoadTemplates_ShippedFile(t *testing.T) {
	ts, err := LoadTemplates("../../../configs/mcx_templates.xml")
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	for _, id := range []uint32{60, 93, 94, 99, 120} {
		if _, ok := ts.Lookup(id); !ok {
			t.Errorf("template %d missing", id)
		}
	}
	if _, err := LoadTemplates("does-not-exist.xml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecoder_ExponentRange(t *testing.T) {
	entryHead := cat(pm(true, true), encU(94), encU(40), encU(1), pm(true, true), encU(0), encU(1), encI(1000))

	tests := []struct {
		name   string
		stream []byte
	}{
		{"field exponent", cat(entryHead, null, encNI(1000000000), encI(5), null, null)},
		{"delta exponent", cat(entryHead, encNI(64), encI(1), null, null, null)},
		{"composite exponent", cat(pm(true, true, true, true, true), encU(7), encI(-64), encI(1), encA("A"), null, encU(1), encU(9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder(t)
			_, _, err := d.Decode(tt.stream)
			if !errors.Is(err, errExponentRange) {
				t.Errorf("expected errExponentRange, got %v", err)
			}
		})
	}

	t.Run("bounds accepted", func(t *testing.T) {
		d := newTestDecoder(t)
		msg, _, err := d.Decode(cat(entryHead, null, encNI(-63), encI(7), null, null))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		sz, ok := msg.Fields.Sequence("MDIncGrp")[0].Decimal("MDEntrySize")
		if !ok || sz.Exponent() != -63 {
			t.Errorf("MDEntrySize = %v", sz)
		}
	})
}
