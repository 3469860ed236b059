package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func testOrder(amount, fee uint64) Order {
	return Order{
		ID:         "test-id",
		Side:       Buy,
		Amount:     amount,
		Price:      100,
		Expiration: 10_000,
		MatcherFee: fee,
	}
}

func TestNewLimitOrder(t *testing.T) {
	lo := NewLimitOrder(testOrder(100, 300))
	assert.Equal(t, uint64(100), lo.Remaining)
	assert.Equal(t, uint64(300), lo.RemainingFee)
}

func TestLimitOrder_Valid(t *testing.T) {
	lo := NewLimitOrder(testOrder(100, 300))
	assert.True(t, lo.Valid(9_999))
	assert.False(t, lo.Valid(10_000), "expiration boundary is exclusive")

	lo.Remaining = 0
	assert.False(t, lo.Valid(0))
}

func TestLimitOrder_ShrinkScalesFee(t *testing.T) {
	lo := NewLimitOrder(testOrder(100, 300))

	// 30 of 100 filled: remaining fee is ceil(300 * 70 / 100) = 210.
	after := lo.Shrink(30)
	assert.Equal(t, uint64(70), after.Remaining)
	assert.Equal(t, uint64(210), after.RemainingFee)
	assert.Equal(t, uint64(90), lo.ExecutedFee(30))

	// Rounding goes up on uneven splits.
	lo = NewLimitOrder(testOrder(3, 100))
	after = lo.Shrink(1)
	assert.Equal(t, uint64(67), after.RemainingFee)
}

func TestLimitOrder_TerminalFillPaysExactRemainder(t *testing.T) {
	lo := NewLimitOrder(testOrder(3, 100))
	first := lo.Shrink(1)
	second := first.Shrink(1)
	third := second.Shrink(1)

	assert.Equal(t, uint64(0), third.Remaining)
	assert.Equal(t, uint64(0), third.RemainingFee)

	total := lo.ExecutedFee(1) + first.ExecutedFee(1) + second.ExecutedFee(1)
	assert.Equal(t, lo.Order.MatcherFee, total, "fee must not drift across fills")
}

// Fee conservation over any fill sequence: whatever the partials, the sum
// of executed fees on a fully filled order equals the matcher fee exactly.
func TestLimitOrder_FeeConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Uint64Range(1, 1_000_000).Draw(t, "amount")
		fee := rapid.Uint64Range(0, 10_000_000).Draw(t, "fee")
		lo := NewLimitOrder(testOrder(amount, fee))

		var paid uint64
		for lo.Remaining > 0 {
			qty := rapid.Uint64Range(1, lo.Remaining).Draw(t, "qty")
			paid += lo.ExecutedFee(qty)
			lo = lo.Shrink(qty)
			assert.Equal(t, fee, paid+lo.RemainingFee)
		}
		assert.Equal(t, fee, paid)
	})
}

func TestNewOrderExecuted(t *testing.T) {
	sub := NewLimitOrder(Order{ID: "b", Side: Buy, Amount: 30, Price: 101, MatcherFee: 300})
	cnt := NewLimitOrder(Order{ID: "s", Side: Sell, Amount: 50, Price: 100, MatcherFee: 500})

	e := NewOrderExecuted(sub, cnt)
	assert.Equal(t, uint64(30), e.Amount)
	assert.Equal(t, uint64(100), e.Price, "trade executes at the maker price")
	assert.Equal(t, uint64(0), e.SubmittedRemaining)
	assert.Equal(t, uint64(20), e.CounterRemaining)
	assert.Equal(t, uint64(200), e.CounterRemainingFee)

	buy, sell := e.BuySell()
	assert.Equal(t, "b", buy.Order.ID)
	assert.Equal(t, "s", sell.Order.ID)
}

// Conservation: both sides lose exactly the trade amount.
func TestOrderExecuted_Conservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subAmt := rapid.Uint64Range(1, 1_000_000).Draw(t, "subAmt")
		cntAmt := rapid.Uint64Range(1, 1_000_000).Draw(t, "cntAmt")
		sub := NewLimitOrder(Order{ID: "b", Side: Buy, Amount: subAmt, Price: 100, MatcherFee: 300})
		cnt := NewLimitOrder(Order{ID: "s", Side: Sell, Amount: cntAmt, Price: 100, MatcherFee: 500})

		e := NewOrderExecuted(sub, cnt)
		assert.Equal(t, e.Amount, sub.Remaining-e.SubmittedRemaining)
		assert.Equal(t, e.Amount, cnt.Remaining-e.CounterRemaining)
	})
}
