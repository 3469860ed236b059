// Package match holds the single-step matching decision. It is pure: the
// driver in internal/core journals and applies whatever comes out of it,
// and re-invokes it until no further execution is produced.
package match

import (
	"hati/internal/book"
	"hati/internal/common"
)

// One decides the next event for an incoming order against the book. Either
// the order crosses the best counter and executes at the counter's (maker)
// price, or it comes to rest.
func One(b *book.Book, submitted common.LimitOrder) common.Event {
	counter, ok := b.BestCounter(submitted.Order.Side)
	if !ok || !crosses(submitted.Order, counter.Order) {
		return common.OrderAdded{Order: submitted}
	}
	return common.NewOrderExecuted(submitted, counter)
}

func crosses(submitted, counter common.Order) bool {
	if submitted.Side == common.Buy {
		return submitted.Price >= counter.Price
	}
	return submitted.Price <= counter.Price
}
