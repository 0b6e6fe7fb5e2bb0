package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"quarry/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsInPostingOrder(t *testing.T) {
	l := New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, l.Call(ctx, func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestDrainWithoutRun(t *testing.T) {
	l := New(log.Discard())
	count := 0
	l.Post(func() { count++ })
	l.Post(func() { count++ })

	assert.Equal(t, 2, l.Pending())
	assert.Equal(t, 2, l.Drain())
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, l.Pending())
}

func TestStop(t *testing.T) {
	l := New(log.Discard())
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	l.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestRunTwice(t *testing.T) {
	l := New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	require.Eventually(t, func() bool { return l.running.Load() }, time.Second, time.Millisecond)

	assert.Error(t, l.Run(ctx))
}
