package web

// upload_limiter.go bounds how many uploads the server reads at once.
//
// Each upload is parsed into memory or a temp file before the controller
// sees it, so a burst of large multipart bodies is limited here. Requests
// that cannot get a slot within maxWait fail with errTooManyUploads.

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	defaultMaxConcurrentUploads = 2
	defaultUploadWait           = 10 * time.Second
)

// uploadLimiter is a semaphore over upload reads.
type uploadLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
}

func newUploadLimiter(maxConcurrent int, maxWait time.Duration) *uploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = defaultUploadWait
	}
	return &uploadLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// acquire waits for a slot. The caller must call release on success.
func (l *uploadLimiter) acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTooManyUploads
	}
}

func (l *uploadLimiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

func (l *uploadLimiter) activeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// waitForDrain blocks until no upload is being read or ctx ends.
func (l *uploadLimiter) waitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.activeCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
