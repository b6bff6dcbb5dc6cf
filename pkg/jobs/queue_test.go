package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var abandoned []Job
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		GiveUp: func(job Job, err error) {
			mu.Lock()
			abandoned = append(abandoned, job)
			mu.Unlock()
			close(done)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "seat_reconcile", Key: "c1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never abandoned")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, abandoned, 1)
	assert.Equal(t, "c1", abandoned[0].Key)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "1"}))
	assert.Error(t, q.TryEnqueue(Job{ID: "1"}))
}

func TestQueueTryEnqueueReportsFullBuffer(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("busy", func(ctx context.Context, job Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "buffered"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "overflow"}), ErrQueueFull)
}

func TestQueueCoalescesWaitingJobsByKey(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	q := NewQueue("coalesce", func(ctx context.Context, job Job) error {
		if job.ID == "blocker" {
			<-release
		}
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "blocker"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "first", Key: "c1"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "second", Key: "c1"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "other", Key: "c2"}))
	assert.Len(t, q.jobs, 2)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"blocker", "first", "other"}, seen)
	mu.Unlock()

	require.NoError(t, q.TryEnqueue(Job{ID: "again", Key: "c1"}))
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	abandoned := make(chan error, 1)
	q := NewQueue("panicky", func(context.Context, Job) error {
		panic("nil map")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, GiveUp: func(_ Job, err error) { abandoned <- err }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "c1"}))
	select {
	case err := <-abandoned:
		assert.Contains(t, err.Error(), "nil map")
	case <-time.After(time.Second):
		t.Fatal("panicking job was never abandoned")
	}
}

func TestQueueBackoffDoublesUpToCap(t *testing.T) {
	q := NewQueue("backoff", func(context.Context, Job) error { return nil }, QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q := NewQueue("stopped", func(context.Context, Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrNotStarted)
}
