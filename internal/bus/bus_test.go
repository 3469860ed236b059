package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FansOutToEverySubscriber(t *testing.T) {
	b := New()
	first := b.Subscribe(4)
	second := b.Subscribe(4)

	b.Publish("hello")

	assert.Equal(t, "hello", <-first)
	assert.Equal(t, "hello", <-second)
}

func TestBus_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	b := New()
	slow := b.Subscribe(1)
	fast := b.Subscribe(4)

	b.Publish(1)
	b.Publish(2) // slow's buffer is full; must not block

	assert.Equal(t, 1, <-slow)
	assert.Equal(t, 1, <-fast)
	assert.Equal(t, 2, <-fast)
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	b.Close()

	_, open := <-sub
	assert.False(t, open)

	// Publishing and double-closing after Close are harmless.
	b.Publish("ignored")
	b.Close()
}

func TestBus_SubscribeAfterCloseIsClosed(t *testing.T) {
	b := New()
	b.Close()
	sub := b.Subscribe(1)
	_, open := <-sub
	require.False(t, open)
}
