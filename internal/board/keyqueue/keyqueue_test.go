package keyqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lizmareco/tablero/internal/common/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(logger.NewNop())
	t.Cleanup(func() {
		q.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Wait(ctx)
	})
	return q
}

func TestQueue_SameKeyRunsInOrder(t *testing.T) {
	q := newTestQueue(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, q.Enqueue("card:1", func(ctx context.Context) {
			// Yield so a broken implementation would interleave.
			time.Sleep(time.Microsecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	require.Len(t, order, 50)
	for i, v := range order {
		if v != i {
			t.Fatalf("job %d ran at slot %d", v, i)
		}
	}
}

func TestQueue_SameKeyNeverOverlaps(t *testing.T) {
	q := newTestQueue(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue("list:2", func(ctx context.Context) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, 1, maxActive)
}

func TestQueue_DifferentKeysRunConcurrently(t *testing.T) {
	q := newTestQueue(t)

	release := make(chan struct{})
	started := make(chan string, 2)
	for _, key := range []string{"card:1", "card:2"} {
		key := key
		require.NoError(t, q.Enqueue(key, func(ctx context.Context) {
			started <- key
			<-release
		}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs for different keys did not run concurrently")
		}
	}
	close(release)
	require.NoError(t, q.Wait(context.Background()))
}

func TestQueue_Pending(t *testing.T) {
	q := newTestQueue(t)

	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue("card:9", func(ctx context.Context) { <-release }))
	}
	assert.Equal(t, 3, q.Pending("card:9"))
	assert.Equal(t, 0, q.Pending("card:10"))

	close(release)
	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, 0, q.Pending("card:9"))
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := newTestQueue(t)

	release := make(chan struct{})
	require.NoError(t, q.Enqueue("k", func(ctx context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Wait(context.Background()))
}

func TestQueue_CloseCancelsAndRejects(t *testing.T) {
	q := newTestQueue(t)

	cancelled := make(chan struct{})
	require.NoError(t, q.Enqueue("k", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	q.Close()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("running job did not observe cancellation")
	}

	assert.ErrorIs(t, q.Enqueue("k", func(context.Context) {}), ErrClosed)
	require.NoError(t, q.Wait(context.Background()))
}

func TestQueue_PanicDoesNotStopKey(t *testing.T) {
	q := newTestQueue(t)

	ran := make(chan struct{})
	require.NoError(t, q.Enqueue("k", func(context.Context) { panic("boom") }))
	require.NoError(t, q.Enqueue("k", func(context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job after a panic never ran")
	}
	require.NoError(t, q.Wait(context.Background()))
}
