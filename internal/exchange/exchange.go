// Package exchange routes commands to the book actor owning each trading
// pair, creating actors on demand and restarting crashed ones through
// recovery. Books never share state; the only cross-pair structure is the
// routing map.
package exchange

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"hati/internal/bus"
	"hati/internal/common"
	"hati/internal/core"
	"hati/internal/journal"
	"hati/internal/metrics"
	"hati/internal/snapshot"
	"hati/internal/tx"
)

var ErrUnknownPair = errors.New("no book for pair")

type Config struct {
	DataDir string
	Book    core.Config
}

// Deps are shared across every book: one bus, one UTX pool, one builder.
type Deps struct {
	Builder  tx.Builder
	Utx      tx.UtxPool
	Channels tx.Broadcaster
	Events   *bus.Bus
	Stats    *metrics.Collector
	Now      func() uint64
}

type Exchange struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	books map[string]*core.BookCore
}

func New(cfg Config, deps Deps) *Exchange {
	return &Exchange{
		cfg:   cfg,
		deps:  deps,
		books: make(map[string]*core.BookCore),
	}
}

// Start brings up a book for every pair directory already on disk, so
// resting state is served again without waiting for the first command.
func (e *Exchange) Start() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(e.cfg.DataDir, 0o755)
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pair, err := common.ParseAssetPair(entry.Name())
		if err != nil {
			log.Warn().Str("dir", entry.Name()).Msg("skipping non-pair directory")
			continue
		}
		if _, err := e.Book(pair); err != nil {
			return fmt.Errorf("recovering %s: %w", pair.Key(), err)
		}
	}
	return nil
}

// Book returns the live actor for pair, creating or restarting it as
// needed.
func (e *Exchange) Book(pair common.AssetPair) (*core.BookCore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.books[pair.Key()]; ok {
		select {
		case <-b.Dead():
			log.Warn().
				Str("pair", pair.Key()).
				AnErr("cause", b.Err()).
				Msg("restarting dead book")
			delete(e.books, pair.Key())
		default:
			return b, nil
		}
	}
	b, err := e.open(pair)
	if err != nil {
		return nil, err
	}
	e.books[pair.Key()] = b
	return b, nil
}

func (e *Exchange) open(pair common.AssetPair) (*core.BookCore, error) {
	dir := filepath.Join(e.cfg.DataDir, pair.Key())
	jrn, err := journal.Open(dir)
	if err != nil {
		return nil, err
	}
	snaps, err := snapshot.Open(filepath.Join(dir, "snapshots"))
	if err != nil {
		jrn.Close()
		return nil, err
	}
	b := core.New(pair, e.cfg.Book, core.Deps{
		Journal:   jrn,
		Snapshots: snaps,
		Builder:   e.deps.Builder,
		Utx:       e.deps.Utx,
		Channels:  e.deps.Channels,
		Events:    e.deps.Events,
		Stats:     e.deps.Stats,
		Now:       e.deps.Now,
	})
	if err := b.Start(); err != nil {
		jrn.Close()
		return nil, err
	}
	return b, nil
}

// existing returns the already-running book for pair, if any.
func (e *Exchange) existing(pair common.AssetPair) (*core.BookCore, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[pair.Key()]
	return b, ok
}

func (e *Exchange) PlaceOrder(o common.Order) error {
	b, err := e.Book(o.Pair)
	if err != nil {
		return err
	}
	return b.Place(o)
}

func (e *Exchange) CancelOrder(pair common.AssetPair, id string) error {
	b, ok := e.existing(pair)
	if !ok {
		return core.ErrOrderNotFound
	}
	return b.Cancel(id)
}

func (e *Exchange) MarketStatus(pair common.AssetPair) (common.MarketStatusPayload, error) {
	b, ok := e.existing(pair)
	if !ok {
		return common.MarketStatusPayload{}, ErrUnknownPair
	}
	return b.MarketStatus()
}

func (e *Exchange) OrderBook(pair common.AssetPair) (common.OrderBookPayload, error) {
	b, ok := e.existing(pair)
	if !ok {
		return common.OrderBookPayload{}, ErrUnknownPair
	}
	return b.OrderBook()
}

// DeleteBook drains and stops the pair's actor and removes its durable
// state. Terminal: there is nothing to replay afterwards.
func (e *Exchange) DeleteBook(pair common.AssetPair) error {
	e.mu.Lock()
	b, ok := e.books[pair.Key()]
	delete(e.books, pair.Key())
	e.mu.Unlock()
	if !ok {
		return ErrUnknownPair
	}
	if err := b.Delete(); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(e.cfg.DataDir, pair.Key()))
}

// Shutdown stops every book and waits for them.
func (e *Exchange) Shutdown() {
	e.mu.Lock()
	books := make([]*core.BookCore, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.books = make(map[string]*core.BookCore)
	e.mu.Unlock()
	for _, b := range books {
		if err := b.Stop(); err != nil {
			log.Warn().Err(err).Str("pair", b.Pair().Key()).Msg("stopping book")
		}
	}
}
