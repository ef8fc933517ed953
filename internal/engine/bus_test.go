package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	require.True(t, bus.Post(Message{Type: MessageWarning, Source: "a", Text: "one"}))
	require.True(t, bus.Post(Message{Type: MessageEOS, Source: "b"}))
	assert.Equal(t, 2, bus.Pending())

	ctx := t.Context()
	first, err := bus.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", first.Text)
	assert.False(t, first.Time.IsZero())

	second, err := bus.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageEOS, second.Type)
}

func TestBusPopHonoursContext(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := bus.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBusPopWakesOnPost(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	got := make(chan Message, 1)
	go func() {
		msg, err := bus.Pop(context.Background())
		if err == nil {
			got <- msg
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Post(Message{Type: MessageError, Source: "sink", Text: "boom"})

	select {
	case msg := <-got:
		assert.Equal(t, "sink: boom", msg.String())
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Post")
	}
}

func TestBusCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Post(Message{Type: MessageEOS, Source: "sink"})
	bus.Close()
	bus.Close()

	assert.False(t, bus.Post(Message{Type: MessageWarning}), "post after close is dropped")

	msg, err := bus.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, MessageEOS, msg.Type)

	_, err = bus.Pop(t.Context())
	require.ErrorIs(t, err, ErrBusClosed)
}

func TestBusTimedPopFiltered(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Post(Message{Type: MessageStateChanged, Source: "p", Old: StateNull, New: StatePlaying})
	bus.Post(Message{Type: MessageWarning, Source: "x"})
	bus.Post(Message{Type: MessageEOS, Source: "sink"})

	msg, ok := bus.TimedPopFiltered(time.Second, MessageEOS|MessageError)
	require.True(t, ok)
	assert.Equal(t, MessageEOS, msg.Type)
	assert.Equal(t, 0, bus.Pending(), "non matching messages are dropped")

	start := time.Now()
	_, ok = bus.TimedPopFiltered(30*time.Millisecond, MessageAny)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestBusConcurrentPosters(t *testing.T) {
	t.Parallel()

	const posters, each = 8, 100
	bus := NewBus()

	var wg sync.WaitGroup
	for range posters {
		wg.Go(func() {
			for range each {
				bus.Post(Message{Type: MessageWarning})
			}
		})
	}
	wg.Wait()

	bus.Close()
	count := 0
	for {
		if _, err := bus.Pop(t.Context()); err != nil {
			break
		}
		count++
	}
	assert.Equal(t, posters*each, count)
}

func TestBusFlush(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Post(Message{Type: MessageWarning})
	bus.Flush()
	assert.Equal(t, 0, bus.Pending())
}

func TestMessageTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", MessageError.String())
	assert.Equal(t, "error|eos", (MessageError | MessageEOS).String())
	assert.Equal(t, "PLAYING", StatePlaying.String())
}
