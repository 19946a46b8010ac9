package timerqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamedHeap(t *testing.T) *Streamed[string, int] {
	t.Helper()
	return NewStreamed[string, int](NewHeap[string, int]())
}

func TestStreamed_PollFeedsBuffer(t *testing.T) {
	s := newStreamedHeap(t)

	_, err := s.Insert(1, "a")
	require.NoError(t, err)
	_, err = s.Insert(2, "b")
	require.NoError(t, err)

	it := s.Poll()
	require.NotNil(t, it)
	assert.Equal(t, "a", it.Payload)
	assert.Equal(t, 1, s.Buffered())

	// The buffered entry is the same record the poll returned.
	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Same(t, it, got)
	assert.Zero(t, s.Buffered())
}

func TestStreamed_NextBlocksUntilPoll(t *testing.T) {
	s := newStreamedHeap(t)

	type result struct {
		item *Item[string, int]
		err  error
	}
	resultCh := make(chan result, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		it, err := s.Next(context.Background())
		resultCh <- result{it, err}
	}()
	<-started

	// Give the consumer a moment to park.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatal("Next returned before any poll")
	default:
	}

	_, err := s.Insert(1, "a")
	require.NoError(t, err)
	require.NotNil(t, s.Poll())

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, "a", r.item.Payload)
	case <-time.After(time.Second):
		t.Fatal("consumer was not resumed")
	}
	assert.Zero(t, s.Buffered())
}

func TestStreamed_FailedPollDoesNotResume(t *testing.T) {
	s := newStreamedHeap(t)

	assert.Nil(t, s.Poll())
	assert.Zero(t, s.Buffered())
}

func TestStreamed_CancellationReleasesWaiter(t *testing.T) {
	s := newStreamedHeap(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errCh <- err
	}()

	// Wait for the consumer to park, then cancel it.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled consumer did not return")
	}

	// The wait slot is released; a later poll buffers instead of leaking
	// into the dead waiter.
	s.mu.Lock()
	assert.Empty(t, s.waiters)
	s.mu.Unlock()

	_, err := s.Insert(1, "a")
	require.NoError(t, err)
	require.NotNil(t, s.Poll())
	assert.Equal(t, 1, s.Buffered())
}

func TestStreamed_NextNilContextPanics(t *testing.T) {
	s := newStreamedHeap(t)
	assert.PanicsWithValue(t, `timerqueue: nil context`, func() {
		_, _ = s.Next(nil) //nolint:staticcheck // intentionally nil
	})
}

func TestStreamed_NextCanceledContext(t *testing.T) {
	s := newStreamedHeap(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamed_MultiConsumerDistribution(t *testing.T) {
	s := newStreamedHeap(t)

	const consumers = 2
	const entries = 6

	type received struct {
		consumer int
		item     *Item[string, int]
	}
	var mu sync.Mutex
	var got []received

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for it := range s.Items(ctx) {
				mu.Lock()
				got = append(got, received{c, it})
				n := len(got)
				mu.Unlock()
				if n == entries {
					cancel()
				}
			}
		}(c)
	}

	payloads := []string{"a", "b", "c", "d", "e", "f"}
	for i, p := range payloads {
		_, err := s.Insert(i, p)
		require.NoError(t, err)
	}
	for range payloads {
		require.NotNil(t, s.Poll())
	}
	wg.Wait()

	// Every entry delivered exactly once across consumers.
	seen := make(map[string]int)
	perConsumer := make(map[int][]int)
	for _, r := range got {
		seen[r.item.Payload]++
		perConsumer[r.consumer] = append(perConsumer[r.consumer], r.item.Priority)
	}
	assert.Len(t, seen, entries)
	for p, n := range seen {
		assert.Equal(t, 1, n, "payload %q delivered %d times", p, n)
	}

	// Each consumer observes its own entries in poll order.
	for c, priorities := range perConsumer {
		for i := 1; i < len(priorities); i++ {
			assert.Less(t, priorities[i-1], priorities[i], "consumer %d out of order: %v", c, priorities)
		}
	}
}

func TestStreamed_ItemsStopsOnBreak(t *testing.T) {
	s := newStreamedHeap(t)

	for i, p := range []string{"a", "b", "c"} {
		_, err := s.Insert(i, p)
		require.NoError(t, err)
	}
	for range 3 {
		require.NotNil(t, s.Poll())
	}

	var got []string
	for it := range s.Items(context.Background()) {
		got = append(got, it.Payload)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, s.Buffered())
}

func TestStreamed_BufferIsFIFOInPollOrder(t *testing.T) {
	s := newStreamedHeap(t)

	// Inserted out of order; polls surface ascending priority, and the
	// buffer preserves that order.
	for _, e := range []struct {
		payload  string
		priority int
	}{{"c", 3}, {"a", 1}, {"b", 2}} {
		_, err := s.Insert(e.priority, e.payload)
		require.NoError(t, err)
	}
	for range 3 {
		require.NotNil(t, s.Poll())
	}

	var got []string
	for range 3 {
		it, err := s.Next(context.Background())
		require.NoError(t, err)
		got = append(got, it.Payload)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
