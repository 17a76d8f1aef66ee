package orderbook

import (
	"testing"
	"time"

	"feed_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(seq uint32) *Snapshot {
	return &Snapshot{
		SecurityID:             7,
		MsgSeqNum:              1,
		LastMsgSeqNumProcessed: seq,
		Entries:                []Entry{level(Bid, 1, "100", "10")},
	}
}

func addAsk(seq uint32, px string) *Incremental {
	return &Incremental{
		SecurityID: 7,
		MsgSeqNum:  seq,
		Updates:    []Update{{Action: ActionNew, Type: Ask, Price: dec(px), Size: dec("5")}},
	}
}

func TestInstrument_IncrementalBeforeSnapshotDropped(t *testing.T) {
	inst := NewInstrument(7)

	book, err := inst.Apply(addAsk(5, "101"))

	assert.Nil(t, book)
	assert.ErrorIs(t, err, domain.ErrNoSnapshot)
	assert.Equal(t, uint32(0), inst.Sequence())
}

func TestInstrument_FirstSnapshotAtZero(t *testing.T) {
	inst := NewInstrument(7)

	book, err := inst.Apply(&Snapshot{SecurityID: 7, Entries: []Entry{level(Bid, 1, "100", "1")}})

	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Same(t, book, inst.Book())
}

func TestInstrument_SequenceFencing(t *testing.T) {
	inst := NewInstrument(7)
	_, err := inst.Apply(snapshot(10))
	require.NoError(t, err)

	book, err := inst.Apply(addAsk(11, "101"))
	require.NoError(t, err)
	require.Len(t, book.Side(Ask), 1)
	assert.Equal(t, uint32(11), book.SeqNo)

	t.Run("duplicate is a no-op", func(t *testing.T) {
		book, err := inst.Apply(addAsk(11, "101"))
		assert.Nil(t, book)
		assert.ErrorIs(t, err, domain.ErrStaleSequence)
		assert.Len(t, inst.Book().Side(Ask), 1)
	})

	t.Run("regression is a no-op", func(t *testing.T) {
		book, err := inst.Apply(addAsk(9, "102"))
		assert.Nil(t, book)
		assert.ErrorIs(t, err, domain.ErrStaleSequence)
		assert.Equal(t, uint32(11), inst.Sequence())
	})

	t.Run("older snapshot is ignored", func(t *testing.T) {
		_, err := inst.Apply(snapshot(11))
		assert.ErrorIs(t, err, domain.ErrStaleSequence)
		assert.Len(t, inst.Book().Side(Ask), 1)
	})

	t.Run("newer snapshot replaces entries", func(t *testing.T) {
		book, err := inst.Apply(snapshot(20))
		require.NoError(t, err)
		assert.Empty(t, book.Side(Ask))
		assert.Equal(t, uint32(20), inst.Sequence())
	})
}

func TestInstrument_PublishedBookIsImmutable(t *testing.T) {
	inst := NewInstrument(7)
	first, err := inst.Apply(snapshot(1))
	require.NoError(t, err)

	_, err = inst.Apply(addAsk(2, "101"))
	require.NoError(t, err)

	assert.Empty(t, first.Side(Ask), "earlier book must not see later updates")
	assert.Len(t, inst.Book().Side(Ask), 1)
}

func TestInstrument_EntryErrorsStillPublish(t *testing.T) {
	inst := NewInstrument(7)
	_, err := inst.Apply(snapshot(1))
	require.NoError(t, err)

	msg := &Incremental{SecurityID: 7, MsgSeqNum: 2, Updates: []Update{
		{Action: ActionDelete, Type: Bid},
		{Action: ActionNew, Type: Ask, Price: dec("101"), Size: dec("1")},
	}}
	book, err := inst.Apply(msg)

	assert.ErrorIs(t, err, ErrMissingLevel)
	require.NotNil(t, book)
	assert.Len(t, book.Side(Ask), 1)
}

func TestToPicture(t *testing.T) {
	b := &Book{
		SecurityID:     99,
		SeqNo:          42,
		TotalBuyQty:    *dec("1500"),
		TotalSellQty:   *dec("700"),
		LastUpdateTime: 123,
		Entries: []Entry{
			level(Ask, 1, "101.25", "4"),
			level(Bid, 1, "100.50", "10"),
			level(Bid, 2, "100.25", "3"),
			{Type: Trade, Price: *dec("100.75"), Size: *dec("2"), Time: 5 * int64(time.Second), TradeCondition: ConditionLast | ConditionHigh},
			{Type: Trade, Price: *dec("99"), TradeCondition: ConditionOpen | ConditionLow},
			{Type: TradeVolume, Size: *dec("12345"), AvgPrice: *dec("100.10")},
		},
	}
	now := time.UnixMicro(1_700_000_000_000_000)

	pic := ToPicture(b, now)

	assert.Equal(t, domain.CodeMcxSnapshot, pic.Header.MessageCode)
	assert.Equal(t, int32(42), pic.Header.LogTime)
	assert.Equal(t, uint64(now.UnixMicro()), pic.Header.Timestamp)
	assert.Equal(t, int64(99), pic.Token)
	assert.Equal(t, int64(1500), pic.TotalBuyQty)
	assert.Equal(t, int32(10075), pic.LTP)
	assert.Equal(t, int32(2), pic.LTQ)
	assert.Equal(t, int32(5), pic.LTT)
	assert.Equal(t, int32(10075), pic.HighPrice)
	assert.Equal(t, int32(9900), pic.OpenPrice)
	assert.Equal(t, int32(9900), pic.LowPrice)
	assert.Equal(t, int64(12345), pic.VolumeTradedToday)
	assert.Equal(t, int32(10010), pic.ATP)
	assert.Equal(t, int16(1), pic.TradingStatus)

	require.Equal(t, int32(2), pic.BuyDepthCount)
	require.Equal(t, int32(1), pic.SellDepthCount)
	assert.Equal(t, int32(10050), pic.Buy()[0].Price)
	assert.Equal(t, int32(10025), pic.Buy()[1].Price)
	assert.Equal(t, int32(10125), pic.Sell()[0].Price)
}
