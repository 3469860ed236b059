// Package journal is the append-only event log backing one book. Every
// state-changing event is written (and synced) here before it is applied,
// so the log prefix is always the source of truth for recovery.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"hati/internal/common"
)

const (
	fileName       = "journal.log"
	journalVersion = 1
	recordHeader   = 4 + 8 // u32 payload length, u64 sequence
)

var (
	magic = []byte("HATJ")

	ErrBadHeader = errors.New("journal header mismatch")
)

// Journal assigns monotonic sequence numbers starting at 1. Records are
// length-prefixed, so a torn tail write is detected and dropped on reopen.
type Journal struct {
	path string
	f    *os.File
	next uint64
}

// Open creates or reopens the journal under dir, scanning any existing
// records to find the next sequence number. A torn trailing record (crash
// mid-append before the ack) is truncated away with a warning.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{path: path, f: f, next: 1}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if _, err := f.Write(header()); err != nil {
			f.Close()
			return nil, fmt.Errorf("write journal header: %w", err)
		}
		return j, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	body, err := checkHeader(data)
	if err != nil {
		f.Close()
		return nil, err
	}
	goodLen := len(header())
	tornAt := -1
	scanRecords(body, func(seq uint64, payload []byte, recLen int) bool {
		j.next = seq + 1
		goodLen += recLen
		return true
	}, &tornAt)
	if tornAt >= 0 {
		log.Warn().
			Str("path", path).
			Int("offset", goodLen).
			Msg("dropping torn journal tail")
		if err := f.Truncate(int64(goodLen)); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate torn tail: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func header() []byte {
	return append(append([]byte{}, magic...), journalVersion)
}

func checkHeader(data []byte) ([]byte, error) {
	h := header()
	if len(data) < len(h) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrBadHeader
	}
	if data[len(magic)] != journalVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadHeader, data[len(magic)])
	}
	return data[len(h):], nil
}

// scanRecords walks the record stream. A truncated record stops the scan
// and reports its offset through tornAt; fn returning false stops early.
func scanRecords(body []byte, fn func(seq uint64, payload []byte, recLen int) bool, tornAt *int) {
	off := 0
	for off < len(body) {
		if off+recordHeader > len(body) {
			*tornAt = off
			return
		}
		n := int(binary.BigEndian.Uint32(body[off:]))
		seq := binary.BigEndian.Uint64(body[off+4:])
		if off+recordHeader+n > len(body) {
			*tornAt = off
			return
		}
		payload := body[off+recordHeader : off+recordHeader+n]
		if !fn(seq, payload, recordHeader+n) {
			return
		}
		off += recordHeader + n
	}
}

// NextSeq is the sequence number the next Append will be given.
func (j *Journal) NextSeq() uint64 {
	return j.next
}

// Append writes and syncs one event, returning its sequence number. The
// event must not be applied unless Append succeeded.
func (j *Journal) Append(ev common.Event) (uint64, error) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return 0, err
	}
	seq := j.next
	rec := make([]byte, 0, recordHeader+len(payload))
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(payload)))
	rec = binary.BigEndian.AppendUint64(rec, seq)
	rec = append(rec, payload...)
	if _, err := j.f.Write(rec); err != nil {
		return 0, fmt.Errorf("append journal record: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return 0, fmt.Errorf("sync journal: %w", err)
	}
	j.next = seq + 1
	return seq, nil
}

// Replay feeds every durable record with sequence >= from to fn, in order.
func (j *Journal) Replay(from uint64, fn func(seq uint64, ev common.Event) error) error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return err
	}
	body, err := checkHeader(data)
	if err != nil {
		return err
	}
	tornAt := -1
	var replayErr error
	scanRecords(body, func(seq uint64, payload []byte, _ int) bool {
		if seq < from {
			return true
		}
		ev, err := DecodeEvent(payload)
		if err != nil {
			replayErr = fmt.Errorf("decode record %d: %w", seq, err)
			return false
		}
		if err := fn(seq, ev); err != nil {
			replayErr = err
			return false
		}
		return true
	}, &tornAt)
	return replayErr
}

// TruncateThrough drops every record with sequence <= seq, rewriting the
// retained tail to a fresh file and atomically replacing the log.
func (j *Journal) TruncateThrough(seq uint64) error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return err
	}
	body, err := checkHeader(data)
	if err != nil {
		return err
	}
	keep := header()
	tornAt := -1
	scanRecords(body, func(recSeq uint64, payload []byte, _ int) bool {
		if recSeq <= seq {
			return true
		}
		keep = binary.BigEndian.AppendUint32(keep, uint32(len(payload)))
		keep = binary.BigEndian.AppendUint64(keep, recSeq)
		keep = append(keep, payload...)
		return true
	}, &tornAt)

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, keep, 0o644); err != nil {
		return fmt.Errorf("write truncated journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace journal: %w", err)
	}
	// The old handle points at the unlinked file; reopen on the new one.
	if err := j.f.Close(); err != nil {
		log.Warn().Err(err).Msg("closing replaced journal file")
	}
	f, err := os.OpenFile(j.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopen journal: %w", err)
	}
	j.f = f
	return nil
}

func (j *Journal) Close() error {
	return j.f.Close()
}
