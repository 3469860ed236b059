package book

import (
	"errors"

	"github.com/tidwall/btree"

	"hati/internal/common"
)

var ErrDuplicateOrder = errors.New("order id already resting")

// Level holds every resting order at one price on one side, in arrival
// order. The head matches first.
type Level struct {
	Price  uint64
	Orders []common.LimitOrder
}

func (l *Level) amount() uint64 {
	var total uint64
	for _, lo := range l.Orders {
		total += lo.Remaining
	}
	return total
}

type Ladder = btree.BTreeG[*Level]

// Book is the pure per-pair order book: two price ladders of FIFO levels.
// Both ladders sort best price first, so Min() is always top of book.
// All mutation goes through Add, RemoveByID, ReplaceHead or Apply; the
// exported trees are for reading.
type Book struct {
	Bids *Ladder
	Asks *Ladder

	// Order id -> side+price of the level holding it.
	index map[string]orderRef

	lastTrade *common.Order
}

type orderRef struct {
	side  common.Side
	price uint64
}

func New() *Book {
	// Bids sorted greatest first, asks least first.
	bids := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price < b.Price
	})
	return &Book{
		Bids:  bids,
		Asks:  asks,
		index: make(map[string]orderRef),
	}
}

func (b *Book) ladder(side common.Side) *Ladder {
	if side == common.Buy {
		return b.Bids
	}
	return b.Asks
}

// Add inserts lo at the tail of its price level.
func (b *Book) Add(lo common.LimitOrder) error {
	if _, ok := b.index[lo.Order.ID]; ok {
		return ErrDuplicateOrder
	}
	levels := b.ladder(lo.Order.Side)
	level, ok := levels.GetMut(&Level{Price: lo.Order.Price})
	if ok {
		level.Orders = append(level.Orders, lo)
	} else {
		levels.Set(&Level{
			Price:  lo.Order.Price,
			Orders: []common.LimitOrder{lo},
		})
	}
	b.index[lo.Order.ID] = orderRef{side: lo.Order.Side, price: lo.Order.Price}
	return nil
}

// Get returns the resting order with the given id.
func (b *Book) Get(id string) (common.LimitOrder, bool) {
	ref, ok := b.index[id]
	if !ok {
		return common.LimitOrder{}, false
	}
	level, _ := b.ladder(ref.side).GetMut(&Level{Price: ref.price})
	for _, lo := range level.Orders {
		if lo.Order.ID == id {
			return lo, true
		}
	}
	return common.LimitOrder{}, false
}

// RemoveByID removes and returns the resting order with the given id. The
// level drops out of the ladder with its last order.
func (b *Book) RemoveByID(id string) (common.LimitOrder, bool) {
	ref, ok := b.index[id]
	if !ok {
		return common.LimitOrder{}, false
	}
	levels := b.ladder(ref.side)
	level, _ := levels.GetMut(&Level{Price: ref.price})
	for i, lo := range level.Orders {
		if lo.Order.ID != id {
			continue
		}
		level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
		delete(b.index, id)
		return lo, true
	}
	return common.LimitOrder{}, false
}

// BestCounter returns the order an incoming order of the given side would
// match first: the head of the best opposite level.
func (b *Book) BestCounter(side common.Side) (common.LimitOrder, bool) {
	level, ok := b.ladder(side.Opposite()).Min()
	if !ok {
		return common.LimitOrder{}, false
	}
	return level.Orders[0], true
}

// ReplaceHead swaps the head of the level at price on the given side for a
// new state of the same order. Used when a resting counter partially fills:
// the remainder keeps its queue position.
func (b *Book) ReplaceHead(side common.Side, price uint64, lo common.LimitOrder) {
	level, ok := b.ladder(side).GetMut(&Level{Price: price})
	if !ok || len(level.Orders) == 0 {
		return
	}
	delete(b.index, level.Orders[0].Order.ID)
	level.Orders[0] = lo
	b.index[lo.Order.ID] = orderRef{side: side, price: price}
}

// LastTrade is the aggressor order of the most recent execution.
func (b *Book) LastTrade() (common.Order, bool) {
	if b.lastTrade == nil {
		return common.Order{}, false
	}
	return *b.lastTrade, true
}

func (b *Book) SetLastTrade(o common.Order) {
	b.lastTrade = &o
}

// OrderCount is the number of resting orders across both sides.
func (b *Book) OrderCount() int {
	return len(b.index)
}

func (b *Book) Empty() bool {
	return len(b.index) == 0
}

// Counts returns the number of resting orders per side.
func (b *Book) Counts() (bids, asks int) {
	for _, ref := range b.index {
		if ref.side == common.Buy {
			bids++
		} else {
			asks++
		}
	}
	return bids, asks
}

// Crossed reports whether the resting state crosses. It must be false
// whenever the book is observable from outside the match loop.
func (b *Book) Crossed() bool {
	bid, okB := b.Bids.Min()
	ask, okA := b.Asks.Min()
	return okB && okA && bid.Price >= ask.Price
}

// Apply advances the book by one journaled event. It is deterministic:
// replaying the same event sequence over the same starting book always
// yields the same book.
func (b *Book) Apply(ev common.Event) {
	switch e := ev.(type) {
	case common.OrderAdded:
		_ = b.Add(e.Order)
	case common.OrderExecuted:
		side := e.Counter.Order.Side
		if e.CounterRemaining > 0 {
			b.ReplaceHead(side, e.Counter.Order.Price, e.CounterAfter())
		} else {
			b.RemoveByID(e.Counter.Order.ID)
		}
		b.SetLastTrade(e.Submitted.Order)
	case common.OrderCanceled:
		// The id may not rest (e.g. the submitted side of a failed
		// trade); removal of an absent id is a no-op.
		b.RemoveByID(e.Order.Order.ID)
	}
}

// Orders returns every resting order, bids first, each side best price
// first and FIFO within a level. The ordering is stable, so encoding and
// re-adding them rebuilds an identical book.
func (b *Book) Orders() []common.LimitOrder {
	out := make([]common.LimitOrder, 0, len(b.index))
	for _, levels := range []*Ladder{b.Bids, b.Asks} {
		levels.Scan(func(level *Level) bool {
			out = append(out, level.Orders...)
			return true
		})
	}
	return out
}

func aggregate(levels *Ladder) []common.LevelAgg {
	out := make([]common.LevelAgg, 0, levels.Len())
	levels.Scan(func(level *Level) bool {
		out = append(out, common.LevelAgg{Price: level.Price, Amount: level.amount()})
		return true
	})
	return out
}

// BidLevels aggregates the bid side, best (highest) price first.
func (b *Book) BidLevels() []common.LevelAgg {
	return aggregate(b.Bids)
}

// AskLevels aggregates the ask side, best (lowest) price first.
func (b *Book) AskLevels() []common.LevelAgg {
	return aggregate(b.Asks)
}

// Payload builds the depth payload served to read queries.
func (b *Book) Payload(now uint64, pair common.AssetPair) common.OrderBookPayload {
	return common.OrderBookPayload{
		Timestamp: now,
		Pair:      pair.Key(),
		Bids:      b.BidLevels(),
		Asks:      b.AskLevels(),
	}
}

// MarketStatus builds the last-trade / top-of-book summary. Missing sides
// stay nil and marshal as JSON null.
func (b *Book) MarketStatus() common.MarketStatusPayload {
	var st common.MarketStatusPayload
	if b.lastTrade != nil {
		price := b.lastTrade.Price
		side := b.lastTrade.Side.String()
		st.LastPrice = &price
		st.LastSide = &side
	}
	if level, ok := b.Bids.Min(); ok {
		price, amount := level.Price, level.amount()
		st.Bid = &price
		st.BidAmount = &amount
	}
	if level, ok := b.Asks.Min(); ok {
		price, amount := level.Price, level.amount()
		st.Ask = &price
		st.AskAmount = &amount
	}
	return st
}
