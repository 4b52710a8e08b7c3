package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startBus(t *testing.T, opts ...Option) (*Bus[string, int], context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := NewBus[string, int](zap.NewNop(), opts...)
	require.NoError(t, b.Start(ctx))
	<-b.Ready()
	return b, ctx
}

func receive(t *testing.T, ch <-chan Message[string, int]) Message[string, int] {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message[string, int]{}
}

func TestBusDelivery(t *testing.T) {
	b, ctx := startBus(t)

	all := b.Subscribe(ctx)
	left := b.Subscribe(ctx, "left")

	b.Publish(ctx, "right", 1)
	b.Publish(ctx, "left", 2)

	assert.Equal(t, Message[string, int]{"right", 1}, receive(t, all))
	assert.Equal(t, Message[string, int]{"left", 2}, receive(t, all))
	assert.Equal(t, Message[string, int]{"left", 2}, receive(t, left))

	select {
	case msg := <-left:
		t.Fatalf("unexpected message %v", msg)
	default:
	}
}

func TestBusPublisherAndSubscriber(t *testing.T) {
	b, ctx := startBus(t)
	sub := b.CreateSubscriber("a", "b")(ctx)
	pubA := b.CreatePublisher("a")
	pubB := b.CreatePublisher("b")

	pubA(ctx, 10)
	pubB(ctx, 20)
	assert.Equal(t, 10, receive(t, sub).Message)
	assert.Equal(t, 20, receive(t, sub).Message)
}

func TestBusSlowSubscriberDropsMessages(t *testing.T) {
	b, ctx := startBus(t, WithBufferSize(2))
	slow := b.Subscribe(ctx, "k")

	for i := 0; i < 5; i++ {
		b.Publish(ctx, "k", i)
	}
	assert.Eventually(t, func() bool {
		return b.Dropped() == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, receive(t, slow).Message)
	assert.Equal(t, 1, receive(t, slow).Message)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b, ctx := startBus(t)
	subCtx, cancel := context.WithCancel(ctx)
	sub := b.Subscribe(subCtx, "k")
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	// publishing after the subscriber left must not panic
	other := b.Subscribe(ctx, "k")
	b.Publish(ctx, "k", 1)
	assert.Equal(t, 1, receive(t, other).Message)
}
