package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hati/internal/common"
)

func limitOrder(id string, amount, price uint64) common.LimitOrder {
	return common.NewLimitOrder(common.Order{
		ID:         id,
		Sender:     []byte{0xaa, 0xbb},
		Side:       common.Buy,
		Amount:     amount,
		Price:      price,
		Timestamp:  42,
		Expiration: 1 << 40,
		MatcherFee: 300,
		Version:    1,
		Signature:  []byte{0x01},
	})
}

func added(id string) common.Event {
	return common.OrderAdded{Order: limitOrder(id, 10, 100)}
}

func replayAll(t *testing.T, j *Journal, from uint64) []common.Event {
	t.Helper()
	var out []common.Event
	require.NoError(t, j.Replay(from, func(_ uint64, ev common.Event) error {
		out = append(out, ev)
		return nil
	}))
	return out
}

func TestCodec_RoundTripsEveryVariant(t *testing.T) {
	sub := limitOrder("b1", 30, 101)
	cnt := limitOrder("s1", 50, 100)
	cnt.Order.Side = common.Sell
	events := []common.Event{
		common.OrderAdded{Order: sub},
		common.NewOrderExecuted(sub, cnt),
		common.OrderCanceled{Order: cnt, Unmatchable: true},
		common.OrderCanceled{Order: sub, Unmatchable: false},
	}
	for _, ev := range events {
		payload, err := EncodeEvent(ev)
		require.NoError(t, err)
		got, err := DecodeEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestCodec_RejectsUnknownTag(t *testing.T) {
	_, err := DecodeEvent([]byte{0xff})
	assert.ErrorIs(t, err, ErrUnknownEventTag)
}

func TestCodec_RejectsTruncatedPayload(t *testing.T) {
	payload, err := EncodeEvent(added("a"))
	require.NoError(t, err)
	_, err = DecodeEvent(payload[:len(payload)/2])
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestJournal_AppendAssignsSequence(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, uint64(1), j.NextSeq())
	seq, err := j.Append(added("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	seq, err = j.Append(added("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, uint64(3), j.NextSeq())
}

func TestJournal_ReplayFromSequence(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	for _, id := range []string{"a", "b", "c"} {
		_, err := j.Append(added(id))
		require.NoError(t, err)
	}

	assert.Len(t, replayAll(t, j, 1), 3)
	events := replayAll(t, j, 3)
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].(common.OrderAdded).Order.Order.ID)
}

func TestJournal_ReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	_, err = j.Append(added("a"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, uint64(2), j.NextSeq())
	assert.Len(t, replayAll(t, j, 1), 1)
}

func TestJournal_TruncateThrough(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	defer j.Close()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := j.Append(added(id))
		require.NoError(t, err)
	}
	require.NoError(t, j.TruncateThrough(2))

	events := replayAll(t, j, 1)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].(common.OrderAdded).Order.Order.ID)

	// Appends after truncation keep the old numbering.
	seq, err := j.Append(added("e"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestJournal_DropsTornTailOnReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	_, err = j.Append(added("a"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// Simulate a crash mid-append: half a record header at the tail.
	path := filepath.Join(dir, "journal.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, uint64(2), j.NextSeq())
	assert.Len(t, replayAll(t, j, 1), 1)
}

func TestJournal_RejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "journal.log"), []byte("not a journal"), 0o644))
	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrBadHeader)
}
