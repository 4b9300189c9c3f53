package core

// upload_limiter.go bounds how many uploads are validated and written at
// once.
//
// Each upload holds one slot of a buffered channel from before decoding
// until its transaction finishes. Requests that find every slot taken wait
// up to maxWait and then fail with ErrTooManyUploads, which the HTTP layer
// turns into 503 with Retry-After. WaitForDrain lets shutdown block until
// in-flight writes are done so no transaction is cut off mid-commit.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when every upload slot stays occupied for
// the whole wait period.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	// DefaultMaxConcurrentUploads is the default limit for parallel uploads.
	DefaultMaxConcurrentUploads = 5

	// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
	DefaultMaxWaitTime = 30 * time.Second
)

// UploadLimiter is a counting semaphore with wait accounting.
type UploadLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.RWMutex
	active  int
	waiting int

	// onChange receives (active, waiting) after every transition.
	onChange func(active, waiting int)
}

// NewUploadLimiter creates a limiter that allows at most maxConcurrent
// simultaneous uploads.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &UploadLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// OnChange registers fn to observe slot usage. Call before first use.
func (l *UploadLimiter) OnChange(fn func(active, waiting int)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Acquire takes a slot, waiting at most maxWait. A cancelled ctx returns
// ctx.Err(); an expired wait returns ErrTooManyUploads. Callers must
// Release after a nil return.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	// Fast path keeps the waiting gauge quiet when slots are free.
	if l.TryAcquire() {
		return nil
	}

	l.adjust(0, 1)
	defer l.adjust(0, -1)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.adjust(1, 0)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// TryAcquire takes a slot without blocking and reports whether it did.
func (l *UploadLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.adjust(1, 0)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *UploadLimiter) Release() {
	l.adjust(-1, 0)
	<-l.semaphore
}

func (l *UploadLimiter) adjust(dActive, dWaiting int) {
	l.mu.Lock()
	l.active += dActive
	l.waiting += dWaiting
	active, waiting, fn := l.active, l.waiting, l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(active, waiting)
	}
}

// ActiveCount returns the number of uploads holding a slot.
func (l *UploadLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *UploadLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *UploadLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no upload holds a slot or ctx ends.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UploadLimiterStatus is a snapshot of limiter usage.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for the readiness endpoint.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	l.mu.RLock()
	active, waiting := l.active, l.waiting
	l.mu.RUnlock()

	return UploadLimiterStatus{
		Active:        active,
		Waiting:       waiting,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
