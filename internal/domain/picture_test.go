package domain

import (
	"errors"
	"testing"
)

func samplePicture() *MarketPicture {
	return &MarketPicture{
		Header:         MessageHeader{MessageCode: CodeMcxSnapshot, LogTime: 17, Timestamp: 1700000000000000},
		Token:          432294,
		TotalBuyQty:    1500,
		TotalSellQty:   900,
		OpenPrice:      10050,
		LTP:            10125,
		LTQ:            3,
		BuyDepthCount:  2,
		SellDepthCount: 1,
		TradingStatus:  1,
		Depth: []DepthLevel{
			{Qty: 10, Price: 10100, Orders: 2},
			{Qty: 5, Price: 10000, Orders: 1},
			{Qty: 7, Price: 10200, Orders: 3},
		},
	}
}

func TestMarketPicture_Binary(t *testing.T) {
	pic := samplePicture()
	b, err := pic.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if len(b) != pictureFixed+3*depthLevelSize {
		t.Fatalf("encoded length = %d", len(b))
	}
	if int(pic.Header.MessageLength) != len(b) {
		t.Errorf("MessageLength = %d, want %d", pic.Header.MessageLength, len(b))
	}

	var got MarketPicture
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if got.Token != pic.Token || got.LTP != pic.LTP || got.Header.LogTime != 17 {
		t.Errorf("decoded picture mismatch: %+v", got)
	}
	if len(got.Buy()) != 2 || len(got.Sell()) != 1 {
		t.Fatalf("sides = %d/%d", len(got.Buy()), len(got.Sell()))
	}
	if got.Sell()[0].Price != 10200 {
		t.Errorf("sell price = %d, want 10200", got.Sell()[0].Price)
	}
}

func TestMarketPicture_ShortBuffer(t *testing.T) {
	var pic MarketPicture
	err := pic.UnmarshalBinary(make([]byte, 10))
	if !errors.Is(err, ErrShortPacket) {
		t.Errorf("expected ErrShortPacket, got %v", err)
	}
}

func TestNewPictureRecord(t *testing.T) {
	rec, err := NewPictureRecord(MCX, samplePicture())
	if err != nil {
		t.Fatalf("NewPictureRecord failed: %v", err)
	}
	if rec.Code != CodeMcxSnapshot || rec.Token != 432294 || rec.Picture == nil {
		t.Errorf("unexpected record: %+v", rec)
	}
	raw := NewRawRecord(BSE, 2002, []byte{1, 2})
	if raw.Picture != nil || len(raw.Payload) != 2 {
		t.Errorf("unexpected raw record: %+v", raw)
	}
}
