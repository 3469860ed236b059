// Package snapshot persists point-in-time book state keyed by journal
// sequence number. Snapshots are an optimization over journal replay, never
// the truth: a corrupt snapshot falls back to the next older one, and
// ultimately to replay from an empty book.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"hati/internal/book"
	"hati/internal/common"
	"hati/internal/journal"
)

const (
	filePrefix      = "snapshot-"
	fileSuffix      = ".bin"
	snapshotVersion = 1
)

var ErrBadSnapshot = errors.New("malformed snapshot")

// Store keeps snapshot files in a single directory, one per sequence.
type Store struct {
	dir string
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(seq uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", filePrefix, seq, fileSuffix))
}

// Save atomically writes the book as the snapshot for seq. Writes go to a
// .tmp file first and are renamed into place, so a crash mid-save never
// leaves a readable-but-partial snapshot.
func (s *Store) Save(seq uint64, b *book.Book) error {
	data := encodeBook(b)
	tmp := s.path(seq) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.path(seq))
}

// seqs lists persisted snapshot sequences, ascending.
func (s *Store) seqs() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		var seq uint64
		if _, err := fmt.Sscanf(name, filePrefix+"%d", &seq); err != nil {
			continue
		}
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Latest loads the newest readable snapshot. Corrupt files are skipped with
// a warning, falling back to older ones; no snapshot at all returns seq 0
// and a nil book.
func (s *Store) Latest() (uint64, *book.Book, error) {
	seqs, err := s.seqs()
	if err != nil {
		return 0, nil, err
	}
	for i := len(seqs) - 1; i >= 0; i-- {
		data, err := os.ReadFile(s.path(seqs[i]))
		if err != nil {
			log.Warn().Err(err).Uint64("seq", seqs[i]).Msg("unreadable snapshot, trying older")
			continue
		}
		b, err := decodeBook(data)
		if err != nil {
			log.Warn().Err(err).Uint64("seq", seqs[i]).Msg("corrupt snapshot, trying older")
			continue
		}
		return seqs[i], b, nil
	}
	return 0, nil, nil
}

// DeleteBelow removes every snapshot with sequence < seq.
func (s *Store) DeleteBelow(seq uint64) error {
	seqs, err := s.seqs()
	if err != nil {
		return err
	}
	for _, old := range seqs {
		if old >= seq {
			break
		}
		if err := os.Remove(s.path(old)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll wipes the store. Used by book deletion, which is terminal.
func (s *Store) DeleteAll() error {
	seqs, err := s.seqs()
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if err := os.Remove(s.path(seq)); err != nil {
			return err
		}
	}
	return nil
}

// --- Book codec -------------------------------------------------------------

// Layout: version byte, last-trade flag (+ last trade as a LimitOrder with
// zero remainders), then order count and every resting order bids-first in
// book iteration order. Re-adding them in order rebuilds identical levels.
func encodeBook(b *book.Book) []byte {
	buf := []byte{snapshotVersion}
	if last, ok := b.LastTrade(); ok {
		buf = append(buf, 1)
		buf = journal.AppendLimitOrder(buf, common.LimitOrder{Order: last})
	} else {
		buf = append(buf, 0)
	}
	orders := b.Orders()
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(orders)))
	for _, lo := range orders {
		buf = journal.AppendLimitOrder(buf, lo)
	}
	return buf
}

func decodeBook(data []byte) (*book.Book, error) {
	r := journal.NewReader(data)
	if v := r.Byte(); v != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadSnapshot, v)
	}
	b := book.New()
	if r.Byte() == 1 {
		b.SetLastTrade(r.LimitOrder().Order)
	}
	count := r.Uint32()
	for i := uint32(0); i < count; i++ {
		lo := r.LimitOrder()
		if r.Err() != nil {
			break
		}
		if err := b.Add(lo); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return b, nil
}
