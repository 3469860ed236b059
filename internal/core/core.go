// Package core drives one market's order book. A BookCore is a single-owner
// actor: every mutation of its book flows through one goroutine, is written
// to the journal before it is applied, and is published to the event bus
// after. Restart recovery replays snapshot + journal back to the same state.
package core

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"hati/internal/book"
	"hati/internal/bus"
	"hati/internal/common"
	"hati/internal/journal"
	"hati/internal/match"
	"hati/internal/metrics"
	"hati/internal/snapshot"
	"hati/internal/tx"
)

const (
	defaultSnapshotInterval = 1000
	defaultCleanupInterval  = time.Minute
	defaultMailboxSize      = 256
)

// Config tunes one book actor. Zero values take the defaults; MinPrice,
// MaxPrice and PriceTick at zero disable the respective placement bound.
type Config struct {
	SnapshotInterval    uint64
	CleanupInterval     time.Duration
	RecoverOrderHistory bool
	MinPrice            uint64
	MaxPrice            uint64
	PriceTick           uint64
	MailboxSize         int
}

func (c Config) withDefaults() Config {
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = defaultSnapshotInterval
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.MailboxSize == 0 {
		c.MailboxSize = defaultMailboxSize
	}
	return c
}

// ExchangeTransactionCreated is published after a trade's transaction was
// admitted to the UTX pool and broadcast.
type ExchangeTransactionCreated struct {
	Tx *tx.ExchangeTx
}

// SnapshotLoaded is published when recovery installed a snapshot, so
// stateful consumers can reset to it before the replayed events arrive.
type SnapshotLoaded struct {
	Pair common.AssetPair
	Seq  uint64
}

// Deps are the collaborators a BookCore is wired with.
type Deps struct {
	Journal   *journal.Journal
	Snapshots *snapshot.Store
	Builder   tx.Builder
	Utx       tx.UtxPool
	Channels  tx.Broadcaster
	Events    *bus.Bus
	Stats     *metrics.Collector // optional
	Now       func() uint64      // optional, unix millis
}

type BookCore struct {
	pair common.AssetPair
	cfg  Config
	log  zerolog.Logger

	book  *book.Book
	jrn   *journal.Journal
	snaps *snapshot.Store

	builder  tx.Builder
	utx      tx.UtxPool
	channels tx.Broadcaster
	events   *bus.Bus
	stats    *metrics.Collector

	now     func() uint64
	mailbox chan command
	t       *tomb.Tomb
}

func New(pair common.AssetPair, cfg Config, deps Deps) *BookCore {
	cfg = cfg.withDefaults()
	now := deps.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	return &BookCore{
		pair:     pair,
		cfg:      cfg,
		log:      log.With().Str("pair", pair.Key()).Logger(),
		book:     book.New(),
		jrn:      deps.Journal,
		snaps:    deps.Snapshots,
		builder:  deps.Builder,
		utx:      deps.Utx,
		channels: deps.Channels,
		events:   deps.Events,
		stats:    deps.Stats,
		now:      now,
		mailbox:  make(chan command, cfg.MailboxSize),
		t:        &tomb.Tomb{},
	}
}

func (c *BookCore) Pair() common.AssetPair {
	return c.pair
}

// Start recovers the book from durable state and begins serving the
// mailbox. A journal replay failure is fatal for the pair.
func (c *BookCore) Start() error {
	if err := c.recover(); err != nil {
		c.t.Kill(err)
		return err
	}
	c.t.Go(c.run)
	return nil
}

// Stop terminates the actor and waits for it.
func (c *BookCore) Stop() error {
	c.t.Kill(nil)
	return c.t.Wait()
}

// Dead reports actor termination; Err carries the fatal error if any.
func (c *BookCore) Dead() <-chan struct{} {
	return c.t.Dead()
}

func (c *BookCore) Err() error {
	return c.t.Err()
}

func (c *BookCore) run() error {
	defer c.jrn.Close()
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	c.log.Info().Msg("book running")
	for {
		select {
		case <-c.t.Dying():
			return tomb.ErrDying
		case <-ticker.C:
			c.handleCleanup(c.now())
		case cmd := <-c.mailbox:
			c.handle(cmd)
		}
	}
}

func (c *BookCore) handle(cmd command) {
	switch m := cmd.(type) {
	case placeCmd:
		c.handlePlace(m)
	case cancelCmd:
		c.handleCancel(m)
	case cleanupCmd:
		c.handleCleanup(m.now)
	case saveSnapshotCmd:
		c.handleSnapshot()
	case deleteCmd:
		c.handleDelete(m)
	case queryCmd:
		m.fn()
		close(m.done)
	}
}

// --- Placement --------------------------------------------------------------

func (c *BookCore) handlePlace(m placeCmd) {
	started := time.Now()
	now := c.now()
	if err := c.validatePlacement(m.order, now); err != nil {
		c.log.Debug().Err(err).Str("order", m.order.ID).Msg("placement rejected")
		m.reply <- err
		return
	}
	// The order is accepted as soon as it passes validation; what the
	// match does to it is reported through the event stream, never here.
	m.reply <- nil
	c.matchLoop(common.NewLimitOrder(m.order), now)
	if c.stats != nil {
		c.stats.PlaceLatency.WithLabelValues(c.pair.Key()).Observe(time.Since(started).Seconds())
	}
}

func (c *BookCore) validatePlacement(o common.Order, now uint64) error {
	if o.Amount == 0 {
		return ErrOrderZeroAmount
	}
	if o.Expiration <= now {
		return ErrOrderExpired
	}
	if o.Price == 0 || (c.cfg.MinPrice > 0 && o.Price < c.cfg.MinPrice) ||
		(c.cfg.MaxPrice > 0 && o.Price > c.cfg.MaxPrice) {
		return ErrPriceOutOfBounds
	}
	if c.cfg.PriceTick > 1 && o.Price%c.cfg.PriceTick != 0 {
		return ErrPriceTick
	}
	if _, ok := c.book.Get(o.ID); ok {
		return ErrOrderDuplicate
	}
	return nil
}

// matchLoop walks the incoming order across the book one fill at a time.
// Each iteration either rests the order (done), fully consumes it (done),
// or removes one resting counter, so iterations are bounded by the resting
// count plus the final add.
func (c *BookCore) matchLoop(submitted common.LimitOrder, now uint64) {
	limit := c.book.OrderCount() + 1
	for i := 0; i < limit; i++ {
		ev := match.One(c.book, submitted)
		switch e := ev.(type) {
		case common.OrderAdded:
			c.processEvent(e)
			return
		case common.OrderExecuted:
			subRem, cntRem, err := c.handleExecuted(e, now)
			if err != nil {
				return
			}
			if cntRem != nil && !cntRem.Valid(now) {
				if c.processEvent(common.OrderCanceled{Order: *cntRem, Unmatchable: true}) != nil {
					return
				}
			}
			if subRem == nil {
				return
			}
			if !subRem.Valid(now) {
				c.processEvent(common.OrderCanceled{Order: *subRem, Unmatchable: true})
				return
			}
			submitted = *subRem
		}
	}
	c.log.Error().
		Str("order", submitted.Order.ID).
		Msg("match loop exceeded its iteration bound")
	c.processEvent(common.OrderCanceled{Order: submitted, Unmatchable: true})
}

// handleExecuted settles one fill: build the exchange transaction, admit it
// to the UTX pool, then journal/apply/publish. A downstream rejection is
// absorbed by the invalid-transaction policy and never reaches the placing
// client. Returned remainders are nil when the respective side is done.
func (c *BookCore) handleExecuted(e common.OrderExecuted, now uint64) (subRem, cntRem *common.LimitOrder, err error) {
	t, buildErr := c.builder.Build(e, now)
	if buildErr == nil {
		buildErr = c.utx.PutIfNew(t)
	}
	if buildErr != nil {
		return c.absorbTxFailure(e, buildErr)
	}

	c.channels.Broadcast(t)
	if err := c.processEvent(e); err != nil {
		return nil, nil, err
	}
	c.events.Publish(ExchangeTransactionCreated{Tx: t})
	if c.stats != nil {
		c.stats.TradesTotal.WithLabelValues(c.pair.Key()).Inc()
		c.stats.TradeVolume.WithLabelValues(c.pair.Key()).Add(float64(e.Amount))
	}
	if e.SubmittedRemaining > 0 {
		lo := e.SubmittedAfter()
		subRem = &lo
	}
	if e.CounterRemaining > 0 {
		lo := e.CounterAfter()
		cntRem = &lo
	}
	return subRem, cntRem, nil
}

// absorbTxFailure keeps the book consistent when the trade's transaction is
// rejected downstream: evict the party whose state caused the rejection and
// let the other side re-try against the next counter.
func (c *BookCore) absorbTxFailure(e common.OrderExecuted, buildErr tx.BuildError) (*common.LimitOrder, *common.LimitOrder, error) {
	kind := errKind(buildErr)
	c.log.Info().
		Err(buildErr).
		Str("kind", kind).
		Str("submitted", e.Submitted.Order.ID).
		Str("counter", e.Counter.Order.ID).
		Msg("exchange transaction rejected")
	if c.stats != nil {
		c.stats.TxRejections.WithLabelValues(c.pair.Key(), kind).Inc()
	}

	cancelCounter := func() error {
		return c.processEvent(common.OrderCanceled{Order: e.Counter, Unmatchable: false})
	}
	retry := &e.Submitted

	switch err := buildErr.(type) {
	case *tx.OrderValidationError:
		if err.Order.ID == e.Submitted.Order.ID {
			return nil, nil, nil
		}
		if err := cancelCounter(); err != nil {
			return nil, nil, err
		}
		return retry, nil, nil
	case *tx.AccountBalanceError:
		counterHit := err.Involves(e.Counter.Order.Sender)
		if counterHit {
			if err := cancelCounter(); err != nil {
				return nil, nil, err
			}
		}
		if err.Involves(e.Submitted.Order.Sender) {
			// Both named: the counter was already cancelled above, then
			// the submitted side aborts.
			return nil, nil, nil
		}
		if !counterHit {
			// Neither party named. Evict the counter anyway so the retry
			// cannot loop on the same pairing.
			if err := cancelCounter(); err != nil {
				return nil, nil, err
			}
		}
		return retry, nil, nil
	case *tx.NegativeAmountError:
		if err := c.processEvent(common.OrderCanceled{Order: e.Submitted, Unmatchable: true}); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	default:
		if err := cancelCounter(); err != nil {
			return nil, nil, err
		}
		return retry, nil, nil
	}
}

func errKind(err tx.BuildError) string {
	switch err.(type) {
	case *tx.OrderValidationError:
		return "order_validation"
	case *tx.AccountBalanceError:
		return "account_balance"
	case *tx.NegativeAmountError:
		return "negative_amount"
	default:
		return "other"
	}
}

// --- Event pipeline ---------------------------------------------------------

// processEvent is the write path every mutation takes: snapshot trigger,
// journal append (write-ahead, synced), in-memory apply, publish. An event
// the journal did not accept is never applied.
func (c *BookCore) processEvent(ev common.Event) error {
	if c.jrn.NextSeq()%c.cfg.SnapshotInterval == 0 {
		c.enqueueSnapshot()
	}
	if _, err := c.jrn.Append(ev); err != nil {
		c.log.Error().Err(err).Msg("journal append failed, stopping book")
		c.t.Kill(fmt.Errorf("journal append: %w", err))
		return err
	}
	c.book.Apply(ev)
	c.events.Publish(ev)
	c.observe(ev)
	return nil
}

func (c *BookCore) observe(ev common.Event) {
	if c.stats == nil {
		return
	}
	pair := c.pair.Key()
	switch e := ev.(type) {
	case common.OrderAdded:
		c.stats.EventsJournaled.WithLabelValues(pair, "added").Inc()
	case common.OrderExecuted:
		c.stats.EventsJournaled.WithLabelValues(pair, "executed").Inc()
	case common.OrderCanceled:
		c.stats.EventsJournaled.WithLabelValues(pair, "canceled").Inc()
		c.stats.CancelsTotal.WithLabelValues(pair, fmt.Sprintf("%t", e.Unmatchable)).Inc()
	}
	bids, asks := c.book.Counts()
	c.stats.RestingOrders.WithLabelValues(pair, "bid").Set(float64(bids))
	c.stats.RestingOrders.WithLabelValues(pair, "ask").Set(float64(asks))
	var bestBid, bestAsk uint64
	if level, ok := c.book.Bids.Min(); ok {
		bestBid = level.Price
	}
	if level, ok := c.book.Asks.Min(); ok {
		bestAsk = level.Price
	}
	c.stats.BestBid.WithLabelValues(pair).Set(float64(bestBid))
	c.stats.BestAsk.WithLabelValues(pair).Set(float64(bestAsk))
}

func (c *BookCore) enqueueSnapshot() {
	select {
	case c.mailbox <- saveSnapshotCmd{}:
	default:
		// Mailbox full; the next interval boundary retries.
		c.log.Warn().Msg("snapshot trigger dropped, mailbox full")
	}
}

// --- Cancel / cleanup / delete ----------------------------------------------

func (c *BookCore) handleCancel(m cancelCmd) {
	lo, ok := c.book.Get(m.id)
	if !ok {
		m.reply <- ErrOrderNotFound
		return
	}
	m.reply <- c.processEvent(common.OrderCanceled{Order: lo, Unmatchable: false})
}

func (c *BookCore) handleCleanup(now uint64) {
	for _, lo := range c.book.Orders() {
		if lo.Valid(now) {
			continue
		}
		if c.processEvent(common.OrderCanceled{Order: lo, Unmatchable: true}) != nil {
			return
		}
	}
}

// handleDelete drains the book and wipes its durable state. The per-order
// cancels are published only: the truncated journal is the record, which is
// what makes DeleteBook terminal and non-replayable.
func (c *BookCore) handleDelete(m deleteCmd) {
	for _, lo := range c.book.Orders() {
		c.book.RemoveByID(lo.Order.ID)
		c.events.Publish(common.OrderCanceled{Order: lo, Unmatchable: false})
	}
	if err := c.snaps.DeleteAll(); err != nil {
		c.log.Warn().Err(err).Msg("deleting snapshots")
	}
	if err := c.jrn.TruncateThrough(c.jrn.NextSeq() - 1); err != nil {
		c.log.Warn().Err(err).Msg("truncating journal")
	}
	c.log.Info().Msg("book deleted")
	m.reply <- nil
	c.t.Kill(nil)
}

// --- Snapshot lifecycle -----------------------------------------------------

// handleSnapshot persists the book at the last journaled sequence, then
// retires the journal prefix and older snapshots. Failures only log: the
// journal still holds everything, and the next interval retries.
func (c *BookCore) handleSnapshot() {
	seq := c.jrn.NextSeq() - 1
	if seq == 0 {
		return
	}
	if err := c.snaps.Save(seq, c.book); err != nil {
		c.log.Warn().Err(err).Uint64("seq", seq).Msg("snapshot save failed")
		return
	}
	if err := c.jrn.TruncateThrough(seq); err != nil {
		c.log.Warn().Err(err).Uint64("seq", seq).Msg("journal truncation failed")
	}
	if err := c.snaps.DeleteBelow(seq); err != nil {
		c.log.Warn().Err(err).Uint64("seq", seq).Msg("old snapshot cleanup failed")
	}
	if c.stats != nil {
		c.stats.SnapshotsSaved.WithLabelValues(c.pair.Key()).Inc()
	}
	c.log.Debug().Uint64("seq", seq).Msg("snapshot saved")
}

// --- Recovery ---------------------------------------------------------------

func (c *BookCore) recover() error {
	seq, b, err := c.snaps.Latest()
	if err != nil {
		c.log.Warn().Err(err).Msg("snapshot load failed, replaying journal from zero")
		seq, b = 0, nil
	}
	if b != nil {
		c.book = b
		c.events.Publish(SnapshotLoaded{Pair: c.pair, Seq: seq})
	}
	replayed := 0
	err = c.jrn.Replay(seq+1, func(_ uint64, ev common.Event) error {
		c.book.Apply(ev)
		if c.cfg.RecoverOrderHistory {
			c.events.Publish(ev)
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal replay: %w", err)
	}
	if c.cfg.RecoverOrderHistory {
		// History consumers rebuild their indexes from the synthesized
		// adds of everything still resting.
		for _, lo := range c.book.Orders() {
			c.events.Publish(common.OrderAdded{Order: lo})
		}
	}
	c.log.Info().
		Uint64("snapshotSeq", seq).
		Int("replayed", replayed).
		Int("resting", c.book.OrderCount()).
		Msg("book recovered")
	return nil
}
