package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&Config{Mode: "sometimes"}, nil)
	assert.Error(t, err)

	_, err = New(&Config{Mode: ModeInterval, IntervalMinutes: 0}, nil)
	assert.Error(t, err)

	_, err = New(&Config{Mode: ModeCron, CronExpression: "not a cron"}, nil)
	assert.Error(t, err)

	_, err = New(&Config{Mode: ModeCron, CronExpression: "0 */6 * * *"}, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRunImmediatelyFiresOnce(t *testing.T) {
	var runs atomic.Int32
	sched, err := New(&Config{
		Mode:            ModeInterval,
		IntervalMinutes: 60,
		RunImmediately:  true,
	}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(ctx)
	}()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(1), runs.Load())
}

func TestNoImmediateRunWaitsForTick(t *testing.T) {
	var runs atomic.Int32
	sched, err := New(&Config{
		Mode:            ModeInterval,
		IntervalMinutes: 60,
		RunImmediately:  false,
	}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
	cancel()
	<-done
}

func TestOverlappingTickDropped(t *testing.T) {
	var mu sync.Mutex
	var concurrent, maxConcurrent, total int

	sched, err := New(&Config{
		Mode:            ModeInterval,
		IntervalMinutes: 60,
	}, func(ctx context.Context) error {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		total++
		mu.Unlock()

		time.Sleep(100 * time.Millisecond)

		mu.Lock()
		concurrent--
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.tick(ctx)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxConcurrent, "runs must never overlap")
	assert.Equal(t, 1, total, "overlapping ticks are dropped, not queued")
}

func TestOnCompleteCallback(t *testing.T) {
	var completions atomic.Int32
	sched, err := New(&Config{Mode: ModeInterval, IntervalMinutes: 60}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	sched.OnComplete(func(err error) {
		assert.NoError(t, err)
		completions.Add(1)
	})

	sched.tick(context.Background())
	assert.Equal(t, int32(1), completions.Load())
}

func TestStartRejectsSecondConcurrentStart(t *testing.T) {
	sched, err := New(&Config{Mode: ModeInterval, IntervalMinutes: 60}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return sched.active.Load()
	}, time.Second, time.Millisecond)

	err = sched.Start(ctx)
	assert.Error(t, err)

	cancel()
	<-done
}

func TestCancelledContextSuppressesTick(t *testing.T) {
	var runs atomic.Int32
	sched, err := New(&Config{Mode: ModeInterval, IntervalMinutes: 60}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.tick(ctx)
	assert.Equal(t, int32(0), runs.Load())
}
