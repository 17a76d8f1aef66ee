package codec

import (
	"strings"
	"testing"

	"feed_go/internal/codec/fast"
	"feed_go/internal/orderbook"

	"github.com/shopspring/decimal"
)

const mcxTemplates = `<templates xmlns="http://www.fixprotocol.org/ns/fast/td/1.1">
  <template name="MDPacketHeader" id="60">
    <uInt32 name="SenderCompID"/>
  </template>
  <template name="FastReset" id="120"/>
  <template name="DepthIncremental" id="94">
    <uInt32 name="MsgSeqNum"/>
    <sequence name="MDIncGrp">
      <length name="NoMDEntries"/>
      <uInt32 name="MDUpdateAction"/>
      <uInt32 name="MDEntryType"/>
      <int64 name="SecurityID"/>
      <decimal name="MDEntryPx" presence="optional"/>
      <uInt32 name="MDPriceLevel" presence="optional"/>
    </sequence>
  </template>
  <template name="TopOfBookImplied" id="97">
    <int64 name="SecurityID"/>
  </template>
</templates>`

func stopBit(v uint64) []byte {
	var out []byte
	for {
		out = append([]byte{byte(v & 0x7f)}, out...)
		v >>= 7
		if v == 0 {
			break
		}
	}
	out[len(out)-1] |= 0x80
	return out
}

func stopBitSigned(v int64) []byte {
	var out []byte
	for {
		out = append([]byte{byte(v & 0x7f)}, out...)
		sign := v & 0x40
		v >>= 7
		if (v == 0 && sign == 0) || (v == -1 && sign != 0) {
			break
		}
	}
	out[len(out)-1] |= 0x80
	return out
}

// incEntry encodes one MDIncGrp element. A nil price is sent as null.
func incEntry(action, typ uint64, sec int64, px *decimal.Decimal, level uint64) []byte {
	b := cat(stopBit(action), stopBit(typ), stopBitSigned(sec))
	if px == nil {
		b = append(b, 0x80)
	} else {
		exp := int64(px.Exponent())
		if exp >= 0 {
			exp++
		}
		b = append(b, stopBitSigned(exp)...)
		b = append(b, stopBitSigned(px.Coefficient().Int64())...)
	}
	return append(b, stopBit(level+1)...)
}

func mcxTestDecoder(t *testing.T) *McxDecoder {
	t.Helper()
	ts, err := fast.ParseTemplates(strings.NewReader(mcxTemplates))
	if err != nil {
		t.Fatalf("ParseTemplates() error = %v", err)
	}
	return NewMcxDecoder(ts)
}

func TestMcxDecoder_Stream(t *testing.T) {
	px := decimal.New(10050, -2)
	stream := cat(
		[]byte{0xC0}, stopBit(60), stopBit(7),
		[]byte{0xC0}, stopBit(94), stopBit(31), stopBit(3),
		incEntry(0, 0, 501, &px, 1),
		incEntry(0, 1, 502, nil, 1),
		incEntry(2, 0, 501, nil, 2),
		[]byte{0xC0}, stopBit(97), stopBitSigned(501),
		[]byte{0xC0}, stopBit(120),
	)

	var got []orderbook.Message
	st, err := mcxTestDecoder(t).Decode(stream, func(m orderbook.Message) { got = append(got, m) })
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := McxStats{Headers: 1, Resets: 1, Incrementals: 1, Other: 1}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
	if len(got) != 2 {
		t.Fatalf("emitted %d messages, want 2", len(got))
	}

	first := got[0].(*orderbook.Incremental)
	if first.SecurityID != 501 || first.MsgSeqNum != 31 || len(first.Updates) != 2 {
		t.Fatalf("first = %+v", first)
	}
	if u := first.Updates[0]; u.Price == nil || !u.Price.Equal(px) || u.Level != 1 || u.Action != orderbook.ActionNew {
		t.Errorf("first update = %+v", u)
	}
	if u := first.Updates[1]; u.Action != orderbook.ActionDelete || u.Level != 2 || u.Price != nil {
		t.Errorf("second update = %+v", u)
	}
	second := got[1].(*orderbook.Incremental)
	if second.SecurityID != 502 || second.Updates[0].Type != orderbook.Ask {
		t.Errorf("second = %+v", second)
	}
}

func TestMcxDecoder_UnknownTemplate(t *testing.T) {
	_, err := mcxTestDecoder(t).Decode(cat([]byte{0xC0}, stopBit(555)), func(orderbook.Message) {})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotFrom(t *testing.T) {
	g := fast.Group{
		"MsgSeqNum":              uint64(10),
		"LastMsgSeqNumProcessed": uint64(42),
		"SecurityID":             int64(777),
		"LastUpdateTime":         int64(1_700_000_000_000_000_000),
		"TotalBuyQuantity":       decimal.NewFromInt(900),
		"MDSshGrp": []fast.Group{
			{"MDEntryType": uint64(0), "MDPriceLevel": uint64(1), "MDEntryPx": decimal.New(10050, -2), "MDEntrySize": decimal.NewFromInt(5), "NumberOfOrders": uint64(2)},
			{"MDEntryType": uint64(2), "MDEntryPx": decimal.New(10075, -2), "TradeCondition": uint64(orderbook.ConditionLast), "AverageTradedPrice": decimal.New(10010, -2)},
		},
	}
	s, err := SnapshotFrom(g)
	if err != nil {
		t.Fatalf("SnapshotFrom() error = %v", err)
	}
	if s.SecurityID != 777 || s.Sequence() != 42 || !s.TotalBuyQty.Equal(decimal.NewFromInt(900)) || !s.TotalSellQty.IsZero() {
		t.Errorf("snapshot = %+v", s)
	}
	if len(s.Entries) != 2 {
		t.Fatalf("entries = %d", len(s.Entries))
	}
	bid := s.Entries[0]
	if bid.Type != orderbook.Bid || bid.Level != 1 || bid.Orders != 2 || !bid.Size.Equal(decimal.NewFromInt(5)) {
		t.Errorf("bid = %+v", bid)
	}
	trade := s.Entries[1]
	if trade.Type != orderbook.Trade || trade.Level != 0 || trade.TradeCondition != orderbook.ConditionLast {
		t.Errorf("trade = %+v", trade)
	}

	if _, err := SnapshotFrom(fast.Group{}); err == nil {
		t.Error("snapshot without SecurityID should fail")
	}
}

func TestIncrementalsFrom_TradeGroup(t *testing.T) {
	g := fast.Group{
		"MsgSeqNum": uint64(5),
		"MDIncGrp": []fast.Group{
			{
				"MDUpdateAction": uint64(0), "MDEntryType": uint64(2), "SecurityID": int64(9),
				"MDEntryPx": decimal.New(101, 0), "TotalBuyQuantity": decimal.NewFromInt(12),
				"TradeEntryGrp": fast.Group{"TradeCondition": uint64(orderbook.ConditionHigh), "AverageTradedPrice": decimal.New(100, 0)},
			},
			{"MDUpdateAction": uint64(1), "MDEntryType": uint64(0)},
		},
	}
	out := IncrementalsFrom(g)
	if len(out) != 1 || len(out[0].Updates) != 1 {
		t.Fatalf("incrementals = %+v", out)
	}
	u := out[0].Updates[0]
	if u.TradeCondition == nil || *u.TradeCondition != orderbook.ConditionHigh {
		t.Errorf("trade condition = %v", u.TradeCondition)
	}
	if u.AvgPrice == nil || !u.AvgPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("avg price = %v", u.AvgPrice)
	}
	if u.TotalBuyQty == nil || u.TotalSellQty != nil || u.Orders != nil {
		t.Errorf("optional fields = %+v", u)
	}
}

func TestClassifyMCX(t *testing.T) {
	tests := []struct {
		msg  fast.Message
		want McxKind
	}{
		{fast.Message{TemplateID: 65}, McxHeader},
		{fast.Message{TemplateID: 120}, McxReset},
		{fast.Message{TemplateID: 101}, McxSnapshot},
		{fast.Message{TemplateID: 102}, McxIncremental},
		{fast.Message{TemplateID: 1, Name: "DepthSnapshot"}, McxSnapshot},
		{fast.Message{TemplateID: 97}, McxOther},
	}
	for _, tt := range tests {
		if got := ClassifyMCX(&tt.msg); got != tt.want {
			t.Errorf("ClassifyMCX(%d %q) = %d, want %d", tt.msg.TemplateID, tt.msg.Name, got, tt.want)
		}
	}
}
