package web

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadLimiter_AcquireRelease(t *testing.T) {
	l := newUploadLimiter(2, time.Second)
	ctx := context.Background()

	require.NoError(t, l.acquire(ctx))
	require.NoError(t, l.acquire(ctx))
	assert.Equal(t, 2, l.activeCount())

	l.release()
	assert.Equal(t, 1, l.activeCount())
	l.release()
	assert.Equal(t, 0, l.activeCount())
}

func TestUploadLimiter_TimesOutWhenFull(t *testing.T) {
	l := newUploadLimiter(1, 30*time.Millisecond)
	require.NoError(t, l.acquire(context.Background()))
	defer l.release()

	start := time.Now()
	err := l.acquire(context.Background())
	assert.ErrorIs(t, err, errTooManyUploads)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestUploadLimiter_ContextCancelled(t *testing.T) {
	l := newUploadLimiter(1, time.Minute)
	require.NoError(t, l.acquire(context.Background()))
	defer l.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.acquire(ctx), context.Canceled)
}

func TestUploadLimiter_Defaults(t *testing.T) {
	l := newUploadLimiter(0, 0)
	assert.Equal(t, defaultMaxConcurrentUploads, cap(l.semaphore))
	assert.Equal(t, defaultUploadWait, l.maxWait)
}

func TestUploadLimiter_WaitForDrain(t *testing.T) {
	l := newUploadLimiter(1, time.Second)
	require.NoError(t, l.acquire(context.Background()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.waitForDrain(ctx))
	assert.Equal(t, 0, l.activeCount())
}

func TestUploadLimiter_WaitForDrainTimeout(t *testing.T) {
	l := newUploadLimiter(1, time.Second)
	require.NoError(t, l.acquire(context.Background()))
	defer l.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.waitForDrain(ctx), context.DeadlineExceeded)
}
