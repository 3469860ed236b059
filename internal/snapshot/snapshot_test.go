package snapshot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hati/internal/book"
	"hati/internal/common"
)

func testBook(t *testing.T) *book.Book {
	t.Helper()
	b := book.New()
	for i, lo := range []common.LimitOrder{
		common.NewLimitOrder(common.Order{ID: "b1", Side: common.Buy, Amount: 10, Price: 99, Expiration: 1 << 40, MatcherFee: 300}),
		common.NewLimitOrder(common.Order{ID: "b2", Side: common.Buy, Amount: 20, Price: 99, Expiration: 1 << 40, MatcherFee: 300}),
		common.NewLimitOrder(common.Order{ID: "s1", Side: common.Sell, Amount: 30, Price: 101, Expiration: 1 << 40, MatcherFee: 300}),
	} {
		require.NoError(t, b.Add(lo), i)
	}
	b.SetLastTrade(common.Order{ID: "agg", Side: common.Sell, Price: 100})
	return b
}

func TestStore_SaveAndLatestRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	want := testBook(t)
	require.NoError(t, s.Save(7, want))

	seq, got, err := s.Latest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, want.Orders(), got.Orders())
	wantLast, _ := want.LastTrade()
	gotLast, _ := got.LastTrade()
	assert.Equal(t, wantLast, gotLast)
}

func TestStore_LatestPicksNewest(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(3, book.New()))
	require.NoError(t, s.Save(12, testBook(t)))

	seq, got, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq)
	assert.Equal(t, 3, got.OrderCount())
}

func TestStore_LatestEmpty(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	seq, got, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	assert.Nil(t, got)
}

func TestStore_LatestFallsBackPastCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(3, testBook(t)))
	require.NoError(t, os.WriteFile(s.path(9), []byte{0xde, 0xad}, 0o644))

	seq, got, err := s.Latest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(3), seq, "corrupt newest snapshot falls back to the older one")
}

func TestStore_DeleteBelow(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, seq := range []uint64{2, 5, 9} {
		require.NoError(t, s.Save(seq, book.New()))
	}
	require.NoError(t, s.DeleteBelow(9))

	seqs, err := s.seqs()
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, seqs)
}

func TestStore_DeleteAll(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(2, book.New()))
	require.NoError(t, s.DeleteAll())

	seq, got, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	assert.Nil(t, got)
}
