package orderbook

import (
	"errors"
	"math/rand"
	"testing"

	"feed_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func level(t EntryType, lvl int32, px, qty string) Entry {
	return Entry{Type: t, Level: lvl, Price: *dec(px), Size: *dec(qty), Orders: 1}
}

func bookWithBids(n int) *Book {
	b := &Book{SecurityID: 1}
	for i := 1; i <= n; i++ {
		px := decimal.NewFromInt(int64(101 - i))
		b.Entries = append(b.Entries, Entry{Type: Bid, Level: int32(i), Price: px, Size: decimal.NewFromInt(10), Orders: int32(i)})
	}
	return b
}

func assertContiguous(t *testing.T, b *Book) {
	t.Helper()
	for _, side := range []EntryType{Bid, Ask} {
		for i, lvl := range b.Levels(side) {
			require.Equal(t, int32(i+1), lvl, "side %d levels %v", side, b.Levels(side))
		}
	}
}

func TestBook_AddWithoutLevelThenDelete(t *testing.T) {
	b := &Book{Entries: []Entry{level(Bid, 1, "100", "10")}}

	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Ask, Price: dec("101"), Size: dec("5")}))

	asks := b.Side(Ask)
	require.Len(t, asks, 1)
	assert.Equal(t, int32(1), asks[0].Level)
	assert.True(t, asks[0].Price.Equal(*dec("101")))

	require.NoError(t, b.Apply(&Update{Action: ActionDelete, Type: Ask, Level: 1}))
	assert.Empty(t, b.Side(Ask))
	assert.Len(t, b.Side(Bid), 1)
}

func TestBook_AddAtLevelShiftsDeeper(t *testing.T) {
	b := bookWithBids(3)

	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Bid, Level: 1, Price: dec("101"), Size: dec("4")}))

	bids := b.Side(Bid)
	require.Len(t, bids, 4)
	assert.True(t, bids[0].Price.Equal(*dec("101")))
	assert.True(t, bids[1].Price.Equal(*dec("100")))
	assertContiguous(t, b)
}

func TestBook_AddLevelBeyondDepthIsClamped(t *testing.T) {
	b := bookWithBids(2)

	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Bid, Level: 7, Price: dec("90"), Size: dec("1")}))

	assert.Equal(t, []int32{1, 2, 3}, b.Levels(Bid))
}

func TestBook_TradeConsumesLevel(t *testing.T) {
	b := bookWithBids(3)
	b.Entries = append(b.Entries, level(Ask, 1, "101", "8"))

	err := b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("100"), Size: dec("10"), TradeCondition: ptr(ConditionLast)})
	require.NoError(t, err)

	bids := b.Side(Bid)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(*dec("99")))
	assertContiguous(t, b)
	require.Len(t, b.Side(Trade), 1)
	assert.Len(t, b.Side(Ask), 1)
}

func TestBook_TradePartialFill(t *testing.T) {
	b := bookWithBids(2)

	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("100"), Size: dec("4")}))

	bids := b.Side(Bid)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Size.Equal(*dec("6")))
}

func TestBook_TradeWithoutMatchingPrice(t *testing.T) {
	b := bookWithBids(2)

	err := b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("55"), Size: dec("1"), TradeCondition: ptr(ConditionLast)})

	assert.True(t, errors.Is(err, domain.ErrNoMatchingPrice))
	assert.Len(t, b.Side(Bid), 2)
	assert.Len(t, b.Side(Trade), 1, "trade entry is still recorded")
}

func TestBook_TradeEntriesKeyedByCondition(t *testing.T) {
	b := &Book{}

	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("10"), TradeCondition: ptr(ConditionOpen)}))
	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("12"), TradeCondition: ptr(ConditionLast)}))
	require.NoError(t, b.Apply(&Update{Action: ActionNew, Type: Trade, Price: dec("13"), TradeCondition: ptr(ConditionLast)}))

	trades := b.Side(Trade)
	require.Len(t, trades, 2)
}

func TestBook_ChangeIsSparse(t *testing.T) {
	b := bookWithBids(2)

	require.NoError(t, b.Apply(&Update{Action: ActionChange, Type: Bid, Level: 2, Size: dec("42")}))

	bid := b.Side(Bid)[1]
	assert.True(t, bid.Size.Equal(*dec("42")))
	assert.Equal(t, int32(2), bid.Orders, "orders not sent, must be kept")
	assert.True(t, bid.Price.Equal(*dec("99")), "change never moves price")
}

func TestBook_ChangeMissingLevelAdds(t *testing.T) {
	b := bookWithBids(1)

	require.NoError(t, b.Apply(&Update{Action: ActionChange, Type: Ask, Level: 1, Price: dec("101"), Size: dec("3")}))

	assert.Len(t, b.Side(Ask), 1)
	assertContiguous(t, b)
}

func TestBook_OverlayUpdatesPrice(t *testing.T) {
	b := bookWithBids(2)

	require.NoError(t, b.Apply(&Update{Action: ActionOverlay, Type: Bid, Level: 1, Price: dec("100.5")}))

	bid := b.Side(Bid)[0]
	assert.True(t, bid.Price.Equal(*dec("100.5")))
	assert.True(t, bid.Size.Equal(*dec("10")))
}

func TestBook_DeleteThru(t *testing.T) {
	b := bookWithBids(4)

	require.NoError(t, b.Apply(&Update{Action: ActionDeleteThru, Type: Bid, Level: 2}))

	bids := b.Side(Bid)
	require.Len(t, bids, 2)
	// Old levels 3 and 4 (98 and 97) survive as 1 and 2.
	assert.True(t, bids[0].Price.Equal(*dec("98")))
	assert.True(t, bids[1].Price.Equal(*dec("97")))
	assertContiguous(t, b)
}

func TestBook_DeleteFrom(t *testing.T) {
	b := bookWithBids(4)
	b.Entries = append(b.Entries, level(Ask, 1, "101", "1"))

	require.NoError(t, b.Apply(&Update{Action: ActionDeleteFrom, Type: Bid, Level: 3}))

	assert.Equal(t, []int32{1, 2}, b.Levels(Bid))
	assert.True(t, b.Side(Bid)[1].Price.Equal(*dec("99")))
	assert.Len(t, b.Side(Ask), 1, "other side untouched")
}

func TestBook_MissingLevel(t *testing.T) {
	b := bookWithBids(1)

	for _, action := range []UpdateAction{ActionChange, ActionDelete, ActionDeleteThru, ActionDeleteFrom, ActionOverlay} {
		err := b.Apply(&Update{Action: action, Type: Bid})
		assert.ErrorIs(t, err, ErrMissingLevel, action.String())
	}
	assert.Len(t, b.Side(Bid), 1)
}

func TestBook_UnknownAction(t *testing.T) {
	b := bookWithBids(1)
	assert.Error(t, b.Apply(&Update{Action: 9, Type: Bid, Level: 1}))
}

func TestBook_LevelsStayContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := &Book{}

	for i := 0; i < 5000; i++ {
		side := EntryType(rng.Intn(2))
		n := int32(len(b.Side(side)))
		lvl := int32(rng.Intn(int(n)+2)) + 1
		u := &Update{Type: side, Level: lvl, Price: dec("100"), Size: dec("5")}
		switch rng.Intn(7) {
		case 0, 1:
			u.Action = ActionNew
			if rng.Intn(3) == 0 {
				u.Level = 0
			}
		case 2:
			u.Action = ActionChange
		case 3:
			u.Action = ActionDelete
		case 4:
			u.Action = ActionDeleteThru
		case 5:
			u.Action = ActionDeleteFrom
		case 6:
			u.Action = ActionOverlay
		}
		require.NoError(t, b.Apply(u))
		assertContiguous(t, b)
	}
}

func ptr[T any](v T) *T { return &v }
