// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_PushPopOrder(t *testing.T) {
	ch := NewChannel()
	ch.Push(Stage{Name: "arranging"})
	ch.Push(ResponseChunk{MessageID: "m1", Chunk: "a", ChunkIndex: 0})
	ch.Push(Complete{Result: map[string]any{"trackId": "t1"}})

	require.Equal(t, 3, ch.Len())

	ctx := context.Background()
	ev, err := ch.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindStage, ev.Kind())

	ev, err = ch.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindResponseChunk, ev.Kind())

	ev, err = ch.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindComplete, ev.Kind())
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_PopTimeout(t *testing.T) {
	ch := NewChannel()

	start := time.Now()
	_, err := ch.Pop(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrPopTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestChannel_PopInterruptedByContext(t *testing.T) {
	ch := NewChannel()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := ch.Pop(ctx, 10*time.Second)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after context cancellation")
	}
}

func TestChannel_PopWakesOnPush(t *testing.T) {
	ch := NewChannel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		ch.Push(StatusUpdate{Message: "mixing"})
	}()

	ev, err := ch.Pop(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindStatus, ev.Kind())
}

func TestChannel_ConcurrentProducersDeliverAll(t *testing.T) {
	ch := NewChannel()
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ch.Push(StatusUpdate{Message: fmt.Sprintf("p%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	ctx := context.Background()
	seen := 0
	for {
		_, err := ch.Pop(ctx, 50*time.Millisecond)
		if err != nil {
			require.ErrorIs(t, err, ErrPopTimeout)
			break
		}
		seen++
	}
	assert.Equal(t, producers*perProducer, seen)
}

func TestChannel_SingleProducerOrderPreserved(t *testing.T) {
	ch := NewChannel()
	const n = 100
	for i := 0; i < n; i++ {
		ch.Push(ResponseChunk{MessageID: "m", Chunk: "x", ChunkIndex: i})
	}
	for i := 0; i < n; i++ {
		ev, err := ch.Pop(context.Background(), time.Second)
		require.NoError(t, err)
		chunk, ok := ev.(ResponseChunk)
		require.True(t, ok)
		assert.Equal(t, i, chunk.ChunkIndex)
	}
}

func TestChannel_CloseDrainsThenReportsClosed(t *testing.T) {
	ch := NewChannel()
	ch.Push(Stage{Name: "arranging"})
	ch.Close()

	// Buffered events survive close.
	ev, err := ch.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindStage, ev.Kind())

	_, err = ch.Pop(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrChannelClosed)

	// Pushes after close are dropped.
	ch.Push(StatusUpdate{Message: "late"})
	_, err = ch.Pop(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannel_CloseWakesWaitingConsumer(t *testing.T) {
	ch := NewChannel()

	done := make(chan error, 1)
	go func() {
		_, err := ch.Pop(context.Background(), 10*time.Second)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}
