package coaching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionLocksSerializeInArrivalOrder(t *testing.T) {
	locks := NewSessionLocks()
	id := uuid.New()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, id)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := locks.Acquire(ctx, id)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}()
		// Let each waiter block before the next one arrives.
		time.Sleep(20 * time.Millisecond)
	}
	release()
	wg.Wait()

	require.Equal(t, []int{0, 1, 2}, order)
	require.Zero(t, locks.Len())
}

func TestSessionLocksHonourCancellation(t *testing.T) {
	locks := NewSessionLocks()
	id := uuid.New()
	release, err := locks.Acquire(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	require.Zero(t, locks.Len())
}

func TestSessionLocksDistinctSessionsDoNotContend(t *testing.T) {
	locks := NewSessionLocks()
	r1, err := locks.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := locks.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	r2()
	require.Equal(t, 1, locks.Len())
}
