package threadlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"groundedmemory/domain/ids"
	"groundedmemory/infrastructure/threadlock"
)

// Acquire spawns a goroutine per acquisition; none may outlive
// the test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_SerializesSameThread(t *testing.T) {
	r := threadlock.NewRegistry()
	thread, err := ids.NewThreadID("thread-lock")
	require.NoError(t, err)

	h1, err := r.Acquire(context.Background(), thread)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		h2, err := r.Acquire(context.Background(), thread)
		require.NoError(t, err)
		close(acquired)
		h2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire on the same thread should block while the first holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestRegistry_DifferentThreadsDoNotBlockEachOther(t *testing.T) {
	r := threadlock.NewRegistry()
	threadA, err := ids.NewThreadID("thread-a")
	require.NoError(t, err)
	threadB, err := ids.NewThreadID("thread-b")
	require.NoError(t, err)

	hA, err := r.Acquire(context.Background(), threadA)
	require.NoError(t, err)
	defer hA.Release()

	done := make(chan error, 1)
	go func() {
		hB, err := r.Acquire(context.Background(), threadB)
		if err == nil {
			hB.Release()
		}
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquiring a different thread's lock should not block")
	}
}

func TestRegistry_AcquireRespectsCancellation(t *testing.T) {
	r := threadlock.NewRegistry()
	thread, err := ids.NewThreadID("thread-cancel")
	require.NoError(t, err)

	h1, err := r.Acquire(context.Background(), thread)
	require.NoError(t, err)
	defer h1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Acquire(ctx, thread)
	assert.Error(t, err)
}
