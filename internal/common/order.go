package common

import (
	"fmt"
	"math/bits"
)

type Side byte

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// Opposite returns the side a counter order rests on.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is the immutable signed envelope accepted by the matcher. The core
// trusts everything in it except expiry and price bounds, which it re-checks.
type Order struct {
	ID         string
	Sender     []byte // sender public key
	Pair       AssetPair
	Side       Side
	Amount     uint64
	Price      uint64
	Timestamp  uint64 // milliseconds
	Expiration uint64 // milliseconds
	MatcherFee uint64
	Version    byte
	Signature  []byte
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %d@%d (%s)", o.Side, o.Pair.Key(), o.Amount, o.Price, o.ID)
}

// LimitOrder is the resting state of an Order: the envelope plus the part of
// the amount and matcher fee not yet consumed by executions.
type LimitOrder struct {
	Order        Order
	Remaining    uint64
	RemainingFee uint64
}

func NewLimitOrder(o Order) LimitOrder {
	return LimitOrder{Order: o, Remaining: o.Amount, RemainingFee: o.MatcherFee}
}

// Valid reports whether the order may still rest in the book at the given
// time: some amount left and not yet expired.
func (lo LimitOrder) Valid(now uint64) bool {
	return lo.Remaining > 0 && lo.Order.Expiration > now
}

// scaledFee returns ceil(fee * remaining / amount). The 128-bit intermediate
// keeps fee*remaining from wrapping for large orders.
func scaledFee(fee, remaining, amount uint64) uint64 {
	if remaining == 0 || amount == 0 {
		return 0
	}
	hi, lo := bits.Mul64(fee, remaining)
	q, r := bits.Div64(hi, lo, amount)
	if r > 0 {
		q++
	}
	return q
}

// Shrink returns the order state after executing qty of it. The terminal fill
// zeroes RemainingFee, so the fees paid across all fills of an order sum to
// exactly Order.MatcherFee.
func (lo LimitOrder) Shrink(qty uint64) LimitOrder {
	if qty > lo.Remaining {
		qty = lo.Remaining
	}
	rest := lo.Remaining - qty
	return LimitOrder{
		Order:        lo.Order,
		Remaining:    rest,
		RemainingFee: scaledFee(lo.Order.MatcherFee, rest, lo.Order.Amount),
	}
}

// ExecutedFee is the matcher fee charged for filling qty of this order.
func (lo LimitOrder) ExecutedFee(qty uint64) uint64 {
	return lo.RemainingFee - lo.Shrink(qty).RemainingFee
}
