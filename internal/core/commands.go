package core

import (
	"errors"

	"hati/internal/common"
)

var (
	// ErrMailboxFull is retryable: the bounded mailbox rejected the
	// command instead of silently dropping it.
	ErrMailboxFull   = errors.New("book mailbox full")
	ErrBookStopped   = errors.New("book stopped")
	ErrOrderNotFound = errors.New("order not found")

	ErrOrderExpired     = errors.New("order expired")
	ErrOrderZeroAmount  = errors.New("order amount is zero")
	ErrPriceOutOfBounds = errors.New("order price outside allowed bounds")
	ErrPriceTick        = errors.New("order price not aligned to tick")
	ErrOrderDuplicate   = errors.New("order id already in the book")
)

// Commands accepted by the actor mailbox. Replies travel on per-command
// channels; queries run a closure on the owning goroutine so reads never
// race the match loop.
type command interface {
	isCommand()
}

type placeCmd struct {
	order common.Order
	reply chan error
}

type cancelCmd struct {
	id    string
	reply chan error
}

type cleanupCmd struct {
	now uint64
}

type saveSnapshotCmd struct{}

type deleteCmd struct {
	reply chan error
}

type queryCmd struct {
	fn   func()
	done chan struct{}
}

func (placeCmd) isCommand()        {}
func (cancelCmd) isCommand()       {}
func (cleanupCmd) isCommand()      {}
func (saveSnapshotCmd) isCommand() {}
func (deleteCmd) isCommand()       {}
func (queryCmd) isCommand()        {}

// send enqueues without ever blocking the caller: a full mailbox is an
// explicit, retryable rejection.
func (c *BookCore) send(cmd command) error {
	select {
	case <-c.t.Dying():
		return ErrBookStopped
	default:
	}
	select {
	case c.mailbox <- cmd:
		return nil
	case <-c.t.Dying():
		return ErrBookStopped
	default:
		return ErrMailboxFull
	}
}

// await blocks for the actor's reply. If the actor dies first, a reply it
// managed to buffer before dying still wins.
func (c *BookCore) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.t.Dead():
		select {
		case err := <-reply:
			return err
		default:
			return ErrBookStopped
		}
	}
}

// Place validates and matches an order. A nil return means the order was
// accepted; whatever happened to it afterwards is visible on the event bus.
func (c *BookCore) Place(order common.Order) error {
	reply := make(chan error, 1)
	if err := c.send(placeCmd{order: order, reply: reply}); err != nil {
		return err
	}
	return c.await(reply)
}

// Cancel removes a resting order on the owner's request.
func (c *BookCore) Cancel(id string) error {
	reply := make(chan error, 1)
	if err := c.send(cancelCmd{id: id, reply: reply}); err != nil {
		return err
	}
	return c.await(reply)
}

// Cleanup scans the book and cancels everything no longer valid at now.
func (c *BookCore) Cleanup(now uint64) error {
	return c.send(cleanupCmd{now: now})
}

// SaveSnapshot asks the actor to snapshot at its next mailbox turn.
func (c *BookCore) SaveSnapshot() error {
	return c.send(saveSnapshotCmd{})
}

// Delete drains the book, wipes its persistent state and stops the actor.
// Terminal: the drain cancels are published but not journaled.
func (c *BookCore) Delete() error {
	reply := make(chan error, 1)
	if err := c.send(deleteCmd{reply: reply}); err != nil {
		return err
	}
	return c.await(reply)
}

func (c *BookCore) query(fn func()) error {
	cmd := queryCmd{fn: fn, done: make(chan struct{})}
	if err := c.send(cmd); err != nil {
		return err
	}
	select {
	case <-cmd.done:
		return nil
	case <-c.t.Dead():
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrBookStopped
		}
	}
}

// Orders returns every resting order.
func (c *BookCore) Orders() ([]common.LimitOrder, error) {
	var out []common.LimitOrder
	err := c.query(func() { out = c.book.Orders() })
	return out, err
}

// Bids returns aggregated bid levels, best first.
func (c *BookCore) Bids() ([]common.LevelAgg, error) {
	var out []common.LevelAgg
	err := c.query(func() { out = c.book.BidLevels() })
	return out, err
}

// Asks returns aggregated ask levels, best first.
func (c *BookCore) Asks() ([]common.LevelAgg, error) {
	var out []common.LevelAgg
	err := c.query(func() { out = c.book.AskLevels() })
	return out, err
}

// MarketStatus returns the last-trade / top-of-book summary.
func (c *BookCore) MarketStatus() (common.MarketStatusPayload, error) {
	var out common.MarketStatusPayload
	err := c.query(func() { out = c.book.MarketStatus() })
	return out, err
}

// OrderBook returns the depth payload.
func (c *BookCore) OrderBook() (common.OrderBookPayload, error) {
	var out common.OrderBookPayload
	err := c.query(func() { out = c.book.Payload(c.now(), c.pair) })
	return out, err
}
