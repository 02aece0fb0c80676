// SPDX-License-Identifier: MIT

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundloom/soundloom/internal/stream"
)

func create(t *testing.T, reg *stream.Registry) string {
	t.Helper()
	id, err := reg.CreateRequest("u1", "generate", nil)
	require.NoError(t, err)
	return id
}

func waitForStatus(t *testing.T, reg *stream.Registry, id string, want stream.Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap, ok := reg.Get(id)
		if ok && snap.Status == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("request %s never reached status %s (last: %v, exists: %v)", id, want, snap.Status, ok)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLaunch_SuccessPath(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	id := create(t, reg)

	ran := make(chan stream.Snapshot, 1)
	ok := Launch(context.Background(), reg, id, Func(func(ctx context.Context, req stream.Snapshot, ch *stream.Channel) error {
		ran <- req
		ch.Push(stream.Stage{Name: "arranging"})
		ch.Push(stream.Complete{Result: map[string]any{"trackId": "trk-1"}})
		return nil
	}))
	require.True(t, ok)

	select {
	case req := <-ran:
		assert.Equal(t, id, req.ID)
		assert.Equal(t, "u1", req.Owner)
	case <-time.After(time.Second):
		t.Fatal("runner never ran")
	}

	waitForStatus(t, reg, id, stream.StatusCompleted)

	ch, ok := reg.GetChannel(id)
	require.True(t, ok)
	assert.Equal(t, 2, ch.Len(), "exactly the runner's two events are buffered")
}

func TestLaunch_FailureProducesErrorThenSyntheticComplete(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	id := create(t, reg)

	ok := Launch(context.Background(), reg, id, Func(func(context.Context, stream.Snapshot, *stream.Channel) error {
		return errors.New("engine unavailable")
	}))
	require.True(t, ok)

	waitForStatus(t, reg, id, stream.StatusFailed)

	ch, _ := reg.GetChannel(id)
	ev, err := ch.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	failure, isFailure := ev.(stream.Failure)
	require.True(t, isFailure)
	assert.Contains(t, failure.Detail, "engine unavailable")

	ev, err = ch.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, stream.KindComplete, ev.Kind(), "failure is followed by a synthetic completion")
}

func TestLaunch_PanicIsContained(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	id := create(t, reg)

	ok := Launch(context.Background(), reg, id, Func(func(context.Context, stream.Snapshot, *stream.Channel) error {
		panic("unexpected meltdown")
	}))
	require.True(t, ok)

	waitForStatus(t, reg, id, stream.StatusFailed)

	ch, _ := reg.GetChannel(id)
	ev, err := ch.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, stream.KindError, ev.Kind())
}

func TestLaunch_CancelStopsTaskWithoutFurtherEvents(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	id := create(t, reg)

	started := make(chan struct{})
	stopped := make(chan struct{})
	ok := Launch(context.Background(), reg, id, Func(func(ctx context.Context, _ stream.Snapshot, ch *stream.Channel) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}))
	require.True(t, ok)

	<-started
	require.True(t, reg.Remove(id, stream.StatusCancelled))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}

	// The entry is gone; the status update from the task body is a no-op.
	_, exists := reg.Get(id)
	assert.False(t, exists)
}

func TestLaunch_MarksProcessing(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	id := create(t, reg)

	release := make(chan struct{})
	ok := Launch(context.Background(), reg, id, Func(func(ctx context.Context, _ stream.Snapshot, _ *stream.Channel) error {
		<-release
		return nil
	}))
	require.True(t, ok)

	snap, exists := reg.Get(id)
	require.True(t, exists)
	assert.Equal(t, stream.StatusProcessing, snap.Status)
	close(release)
	waitForStatus(t, reg, id, stream.StatusCompleted)
}

func TestLaunch_UnknownID(t *testing.T) {
	reg := stream.NewRegistry(stream.Config{})
	assert.False(t, Launch(context.Background(), reg, "req-unknown", Func(func(context.Context, stream.Snapshot, *stream.Channel) error {
		return nil
	})))
}
