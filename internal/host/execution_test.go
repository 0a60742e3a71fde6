package host

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInOrderThenEOF(t *testing.T) {
	e := NewExecution("term", "echo hi")
	e.MarkStarted()
	e.Write([]byte("one "))
	e.Write([]byte("two"))
	code := 0
	ev, first := e.Finish(&code)
	require.True(t, first)
	assert.Equal(t, e.ID, ev.ExecutionID)
	assert.Equal(t, "term", ev.TerminalID)

	out, err := e.Stream().ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one two", string(out))

	_, err = e.Stream().Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFinishIsOnce(t *testing.T) {
	e := NewExecution("term", "true")
	_, first := e.Finish(nil)
	assert.True(t, first)
	_, again := e.Finish(nil)
	assert.False(t, again)

	select {
	case <-e.Started():
	default:
		t.Fatal("finished execution must count as started")
	}
}

func TestStreamNextWaitsForWriter(t *testing.T) {
	e := NewExecution("term", "sleep 1")
	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Write([]byte("late"))
	}()

	chunk, err := e.Stream().Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", string(chunk))
}

func TestStreamReadAllHonoursContext(t *testing.T) {
	e := NewExecution("term", "yes")
	e.Write([]byte("partial"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out, err := e.Stream().ReadAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "partial", string(out))
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()

	b.Close()
	bus.Publish(EndEvent{ExecutionID: "x"})

	select {
	case ev := <-a.Events():
		assert.Equal(t, "x", ev.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestEventBusClosedSubscriberNeverBlocks(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	for i := 0; i < subscriptionBuffer; i++ {
		bus.Publish(EndEvent{ExecutionID: "fill"})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(EndEvent{ExecutionID: "overflow"})
		close(done)
	}()

	sub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a closed subscription")
	}
}
