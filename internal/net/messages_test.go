package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hati/internal/common"
)

var testPair = common.AssetPair{
	Amount: common.NewAssetID([common.AssetIDLen]byte{0x07}),
	Price:  common.NativeAsset(),
}

func TestParseMessage_NewOrder(t *testing.T) {
	sent := NewOrderMessage{
		Pair:       testPair,
		Side:       common.Sell,
		Amount:     1000,
		Price:      42,
		Expiration: 99999,
		MatcherFee: 300,
		Version:    1,
		Sender:     "aabb",
		Signature:  "ccdd",
	}
	parsed, err := parseMessage(EncodeNewOrder(sent))
	require.NoError(t, err)

	got, ok := parsed.(NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, NewOrder, got.GetType())
	sent.TypeOf = NewOrder
	assert.Equal(t, sent, got)
}

func TestParseMessage_CancelOrder(t *testing.T) {
	parsed, err := parseMessage(EncodeCancelOrder(CancelOrderMessage{
		Pair:    testPair,
		OrderID: "some-uuid",
	}))
	require.NoError(t, err)

	got, ok := parsed.(CancelOrderMessage)
	require.True(t, ok)
	assert.Equal(t, testPair, got.Pair)
	assert.Equal(t, "some-uuid", got.OrderID)
}

func TestParseMessage_PairCommands(t *testing.T) {
	for _, typeOf := range []MessageType{MarketStatus, OrderBookReq, DeleteBook} {
		parsed, err := parseMessage(EncodePairMessage(typeOf, testPair))
		require.NoError(t, err)
		got, ok := parsed.(PairMessage)
		require.True(t, ok)
		assert.Equal(t, typeOf, got.GetType())
		assert.Equal(t, testPair, got.Pair)
	}
}

func TestParseMessage_Garbage(t *testing.T) {
	_, err := parseMessage(nil)
	assert.ErrorIs(t, err, ErrMessageTooShort)

	_, err = parseMessage([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	truncated := EncodeNewOrder(NewOrderMessage{Pair: testPair})
	_, err = parseMessage(truncated[:8])
	assert.Error(t, err)
}

func TestReport_FrameRoundTrip(t *testing.T) {
	r := Report{TypeOf: MarketStatusReport, Body: []byte(`{"bid":null}`)}
	frame := r.Serialize()

	// Two frames back to back parse one at a time.
	double := append(append([]byte{}, frame...), frame...)
	got, consumed, err := ParseReport(double)
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.Equal(t, len(frame), consumed)

	_, _, err = ParseReport(frame[:3])
	assert.ErrorIs(t, err, ErrMessageTooShort)
}
