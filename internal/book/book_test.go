package book

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hati/internal/common"
)

// --- Setup & Helpers --------------------------------------------------------

var nextID int

func limitOrder(id string, side common.Side, amount, price uint64) common.LimitOrder {
	if id == "" {
		nextID++
		id = fmt.Sprintf("order-%d", nextID)
	}
	return common.NewLimitOrder(common.Order{
		ID:         id,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Expiration: 1 << 40,
		MatcherFee: 300,
	})
}

// placeTestOrders inserts a batch of resting orders at a specific price/side.
func placeTestOrders(t *testing.T, b *Book, price uint64, side common.Side, amounts ...uint64) {
	t.Helper()
	for _, amount := range amounts {
		require.NoError(t, b.Add(limitOrder("", side, amount, price)))
	}
}

func levels(amounts ...common.LevelAgg) []common.LevelAgg {
	return amounts
}

// --- Tests ------------------------------------------------------------------

func TestBook_AddSortsLevels(t *testing.T) {
	b := New()

	placeTestOrders(t, b, 99, common.Buy, 100, 90, 80)
	placeTestOrders(t, b, 98, common.Buy, 50)
	placeTestOrders(t, b, 100, common.Sell, 100, 90)
	placeTestOrders(t, b, 101, common.Sell, 20)

	assert.Equal(t, levels(
		common.LevelAgg{Price: 99, Amount: 270},
		common.LevelAgg{Price: 98, Amount: 50},
	), b.BidLevels(), "Bids should be sorted High -> Low")
	assert.Equal(t, levels(
		common.LevelAgg{Price: 100, Amount: 190},
		common.LevelAgg{Price: 101, Amount: 20},
	), b.AskLevels(), "Asks should be sorted Low -> High")
	assert.False(t, b.Crossed())
}

func TestBook_AddRejectsDuplicateID(t *testing.T) {
	b := New()
	require.NoError(t, b.Add(limitOrder("dup", common.Buy, 10, 100)))
	assert.ErrorIs(t, b.Add(limitOrder("dup", common.Sell, 10, 101)), ErrDuplicateOrder)
}

func TestBook_LevelKeepsArrivalOrder(t *testing.T) {
	b := New()
	require.NoError(t, b.Add(limitOrder("first", common.Buy, 10, 100)))
	require.NoError(t, b.Add(limitOrder("second", common.Buy, 20, 100)))

	counter, ok := b.BestCounter(common.Sell)
	require.True(t, ok)
	assert.Equal(t, "first", counter.Order.ID, "earlier arrival matches first")
}

func TestBook_BestCounter(t *testing.T) {
	b := New()
	placeTestOrders(t, b, 99, common.Buy, 10)
	placeTestOrders(t, b, 98, common.Buy, 10)
	placeTestOrders(t, b, 101, common.Sell, 10)
	placeTestOrders(t, b, 102, common.Sell, 10)

	ask, ok := b.BestCounter(common.Buy)
	require.True(t, ok)
	assert.Equal(t, uint64(101), ask.Order.Price, "incoming buy sees the lowest ask")

	bid, ok := b.BestCounter(common.Sell)
	require.True(t, ok)
	assert.Equal(t, uint64(99), bid.Order.Price, "incoming sell sees the highest bid")

	_, ok = New().BestCounter(common.Buy)
	assert.False(t, ok)
}

func TestBook_RemoveByID(t *testing.T) {
	b := New()
	require.NoError(t, b.Add(limitOrder("a", common.Buy, 10, 100)))
	require.NoError(t, b.Add(limitOrder("b", common.Buy, 20, 100)))

	lo, ok := b.RemoveByID("a")
	require.True(t, ok)
	assert.Equal(t, "a", lo.Order.ID)
	assert.Equal(t, levels(common.LevelAgg{Price: 100, Amount: 20}), b.BidLevels())

	_, ok = b.RemoveByID("a")
	assert.False(t, ok)

	// Removing the last order drops the level entirely.
	_, ok = b.RemoveByID("b")
	require.True(t, ok)
	assert.Empty(t, b.BidLevels())
	assert.True(t, b.Empty())
}

func TestBook_ReplaceHeadKeepsQueuePosition(t *testing.T) {
	b := New()
	require.NoError(t, b.Add(limitOrder("head", common.Sell, 50, 100)))
	require.NoError(t, b.Add(limitOrder("tail", common.Sell, 10, 100)))

	head, _ := b.Get("head")
	b.ReplaceHead(common.Sell, 100, head.Shrink(30))

	counter, ok := b.BestCounter(common.Buy)
	require.True(t, ok)
	assert.Equal(t, "head", counter.Order.ID, "partially filled counter stays at the head")
	assert.Equal(t, uint64(20), counter.Remaining)
	assert.Equal(t, levels(common.LevelAgg{Price: 100, Amount: 30}), b.AskLevels())
}

func TestBook_ApplyExecuted(t *testing.T) {
	b := New()
	counter := limitOrder("s1", common.Sell, 50, 100)
	require.NoError(t, b.Add(counter))

	sub := limitOrder("b1", common.Buy, 30, 100)
	b.Apply(common.NewOrderExecuted(sub, counter))

	got, ok := b.Get("s1")
	require.True(t, ok)
	assert.Equal(t, uint64(20), got.Remaining)

	last, ok := b.LastTrade()
	require.True(t, ok)
	assert.Equal(t, "b1", last.ID)

	// Terminal fill removes the counter.
	b.Apply(common.NewOrderExecuted(limitOrder("b2", common.Buy, 20, 100), got))
	assert.True(t, b.Empty())
}

func TestBook_ApplyCanceledToleratesAbsentID(t *testing.T) {
	b := New()
	b.Apply(common.OrderCanceled{Order: limitOrder("ghost", common.Buy, 1, 1), Unmatchable: true})
	assert.True(t, b.Empty())
}

func TestBook_MarketStatus(t *testing.T) {
	b := New()
	assert.Equal(t, common.MarketStatusPayload{}, b.MarketStatus(), "empty book is all nulls")

	placeTestOrders(t, b, 99, common.Buy, 10, 5)
	placeTestOrders(t, b, 101, common.Sell, 7)
	b.SetLastTrade(common.Order{Side: common.Buy, Price: 100})

	st := b.MarketStatus()
	require.NotNil(t, st.LastPrice)
	assert.Equal(t, uint64(100), *st.LastPrice)
	assert.Equal(t, "Buy", *st.LastSide)
	assert.Equal(t, uint64(99), *st.Bid)
	assert.Equal(t, uint64(15), *st.BidAmount)
	assert.Equal(t, uint64(101), *st.Ask)
	assert.Equal(t, uint64(7), *st.AskAmount)
}

func TestBook_Payload(t *testing.T) {
	b := New()
	placeTestOrders(t, b, 99, common.Buy, 10)
	placeTestOrders(t, b, 101, common.Sell, 7)

	p := b.Payload(1234, common.AssetPair{})
	assert.Equal(t, uint64(1234), p.Timestamp)
	assert.Equal(t, "NATIVE-NATIVE", p.Pair)
	assert.Equal(t, levels(common.LevelAgg{Price: 99, Amount: 10}), p.Bids)
	assert.Equal(t, levels(common.LevelAgg{Price: 101, Amount: 7}), p.Asks)
}

func TestBook_OrdersIsStableForRebuild(t *testing.T) {
	b := New()
	placeTestOrders(t, b, 99, common.Buy, 10, 20)
	placeTestOrders(t, b, 98, common.Buy, 30)
	placeTestOrders(t, b, 101, common.Sell, 40, 50)

	rebuilt := New()
	for _, lo := range b.Orders() {
		require.NoError(t, rebuilt.Add(lo))
	}
	assert.Equal(t, b.BidLevels(), rebuilt.BidLevels())
	assert.Equal(t, b.AskLevels(), rebuilt.AskLevels())
	assert.Equal(t, b.Orders(), rebuilt.Orders())
}
