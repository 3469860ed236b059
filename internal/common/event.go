package common

import "fmt"

// Event is the journaled domain event ADT. The set is closed: every variant
// the journal can hold is declared in this file.
type Event interface {
	isEvent()
}

// OrderAdded records an order coming to rest in the book.
type OrderAdded struct {
	Order LimitOrder
}

// OrderExecuted records a single fill between the incoming (submitted) order
// and the best resting counter order. Submitted and Counter hold the states
// *before* the fill; the remaining fields hold both sides after it.
type OrderExecuted struct {
	Submitted             LimitOrder
	Counter               LimitOrder
	SubmittedRemaining    uint64
	SubmittedRemainingFee uint64
	CounterRemaining      uint64
	CounterRemainingFee   uint64
	Amount                uint64
	Price                 uint64
}

// OrderCanceled records an order leaving the book without (further) fills.
// Unmatchable marks removals the core decided on its own: expiry, zero
// residual, or an unrecoverable transaction rejection of the submitted side.
type OrderCanceled struct {
	Order       LimitOrder
	Unmatchable bool
}

func (OrderAdded) isEvent()    {}
func (OrderExecuted) isEvent() {}
func (OrderCanceled) isEvent() {}

// NewOrderExecuted builds the fill event for submitted against counter.
// Trade size is the smaller remainder; trade price is the counter's (maker)
// price.
func NewOrderExecuted(submitted, counter LimitOrder) OrderExecuted {
	qty := min(submitted.Remaining, counter.Remaining)
	subAfter := submitted.Shrink(qty)
	cntAfter := counter.Shrink(qty)
	return OrderExecuted{
		Submitted:             submitted,
		Counter:               counter,
		SubmittedRemaining:    subAfter.Remaining,
		SubmittedRemainingFee: subAfter.RemainingFee,
		CounterRemaining:      cntAfter.Remaining,
		CounterRemainingFee:   cntAfter.RemainingFee,
		Amount:                qty,
		Price:                 counter.Order.Price,
	}
}

// SubmittedAfter is the submitted side's state after the fill.
func (e OrderExecuted) SubmittedAfter() LimitOrder {
	return LimitOrder{Order: e.Submitted.Order, Remaining: e.SubmittedRemaining, RemainingFee: e.SubmittedRemainingFee}
}

// CounterAfter is the counter side's state after the fill.
func (e OrderExecuted) CounterAfter() LimitOrder {
	return LimitOrder{Order: e.Counter.Order, Remaining: e.CounterRemaining, RemainingFee: e.CounterRemainingFee}
}

// BuySell splits the two parties of the fill by side.
func (e OrderExecuted) BuySell() (buy, sell LimitOrder) {
	if e.Submitted.Order.Side == Buy {
		return e.Submitted, e.Counter
	}
	return e.Counter, e.Submitted
}

func (e OrderExecuted) String() string {
	return fmt.Sprintf("executed %d@%d: %s x %s",
		e.Amount, e.Price, e.Submitted.Order.ID, e.Counter.Order.ID)
}
