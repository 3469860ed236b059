// Package tx holds the exchange-transaction side of a fill: the transaction
// record sent on-chain, the builder contract, and the pool/broadcast
// collaborators the matching core hands finished transactions to.
package tx

import (
	"github.com/google/uuid"

	"hati/internal/common"
)

// ExchangeTx is the on-chain settlement of one fill.
type ExchangeTx struct {
	ID        string
	BuyOrder  common.Order
	SellOrder common.Order
	Amount    uint64
	Price     uint64
	BuyFee    uint64
	SellFee   uint64
	Timestamp uint64
}

// Builder turns an execution event into a signed exchange transaction, or
// rejects it. Implementations must not read book state: the same event
// always yields the same verdict.
type Builder interface {
	Build(ev common.OrderExecuted, now uint64) (*ExchangeTx, BuildError)
}

// UtxPool admits candidate transactions. PutIfNew is idempotent by tx id.
type UtxPool interface {
	PutIfNew(t *ExchangeTx) BuildError
}

// Broadcaster pushes an accepted transaction to the peer channel group.
// Fire-and-forget: the core never waits on it.
type Broadcaster interface {
	Broadcast(t *ExchangeTx)
}

// ExchangeTxBuilder is the default Builder: it assembles the transaction
// from the two sides of the fill, charging each side the fee consumed by
// this execution.
type ExchangeTxBuilder struct{}

func NewBuilder() *ExchangeTxBuilder {
	return &ExchangeTxBuilder{}
}

func (b *ExchangeTxBuilder) Build(ev common.OrderExecuted, now uint64) (*ExchangeTx, BuildError) {
	if ev.Amount == 0 || ev.SubmittedRemaining > ev.Submitted.Remaining || ev.CounterRemaining > ev.Counter.Remaining {
		return nil, &NegativeAmountError{}
	}
	buy, sell := ev.BuySell()
	return &ExchangeTx{
		ID:        uuid.New().String(),
		BuyOrder:  buy.Order,
		SellOrder: sell.Order,
		Amount:    ev.Amount,
		Price:     ev.Price,
		BuyFee:    buy.ExecutedFee(ev.Amount),
		SellFee:   sell.ExecutedFee(ev.Amount),
		Timestamp: now,
	}, nil
}
