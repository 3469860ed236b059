package tx

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// MemPool is an in-memory UtxPool. Admission is idempotent by transaction
// id; a re-submitted id is accepted without duplicating it.
type MemPool struct {
	mu  sync.Mutex
	txs map[string]*ExchangeTx
}

func NewMemPool() *MemPool {
	return &MemPool{txs: make(map[string]*ExchangeTx)}
}

func (p *MemPool) PutIfNew(t *ExchangeTx) BuildError {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[t.ID]; ok {
		return nil
	}
	p.txs[t.ID] = t
	return nil
}

// All returns the pooled transactions in no particular order.
func (p *MemPool) All() []*ExchangeTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ExchangeTx, 0, len(p.txs))
	for _, t := range p.txs {
		out = append(out, t)
	}
	return out
}

// Len reports the pool size.
func (p *MemPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// LogBroadcaster is the default Broadcaster: it records the hand-off to the
// channel group and drops the transaction. Real peers attach here.
type LogBroadcaster struct{}

func (LogBroadcaster) Broadcast(t *ExchangeTx) {
	log.Debug().
		Str("tx", t.ID).
		Uint64("amount", t.Amount).
		Uint64("price", t.Price).
		Msg("broadcasting exchange transaction")
}
