package persistence

import (
	"context"
	"time"

	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// Default flusher configuration constants.
const (
	defaultFlushDelay   = 500 * time.Millisecond
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
	stopFlushTimeout    = 5 * time.Second
)

// SnapshotFunc captures the current state to persist. It is called on the
// flusher goroutine after the debounce window closes, so a newer flush
// always writes newer state than the one it superseded.
type SnapshotFunc func() State

// Flusher writes state snapshots to a Backend in the background. Notify is
// fire-and-forget: mutations never wait for durability, and a failed write
// is retried with backoff without rolling back in-memory state.
type Flusher struct {
	backend  Backend
	snapshot SnapshotFunc
	delay    time.Duration
	retries  int
	backoff  time.Duration

	notifyCh chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// FlusherOption applies a configuration option to the Flusher.
type FlusherOption func(*Flusher)

// WithFlushDelay sets the debounce window before a flush starts.
func WithFlushDelay(delay time.Duration) FlusherOption {
	return func(f *Flusher) {
		if delay > 0 {
			f.delay = delay
		}
	}
}

// WithRetries sets the retry count and initial backoff for failed flushes.
func WithRetries(retries int, backoff time.Duration) FlusherOption {
	return func(f *Flusher) {
		if retries >= 0 {
			f.retries = retries
		}
		if backoff > 0 {
			f.backoff = backoff
		}
	}
}

// WithFlusherLogger sets a custom logger.
func WithFlusherLogger(l logger.Logger) FlusherOption {
	return func(f *Flusher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFlusher creates a flusher with configuration options.
func NewFlusher(backend Backend, snapshot SnapshotFunc, opts ...FlusherOption) *Flusher {
	f := &Flusher{
		backend:  backend,
		snapshot: snapshot,
		delay:    defaultFlushDelay,
		retries:  defaultMaxRetries,
		backoff:  defaultRetryBackoff,
		notifyCh: make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("flusher"),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Notify marks the state dirty. Never blocks; coalesces with pending marks.
func (f *Flusher) Notify() {
	select {
	case f.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs the flush loop until ctx is canceled or Stop is called.
func (f *Flusher) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.shutdown:
			return
		case <-f.notifyCh:
			if !f.debounce(ctx) {
				return
			}
			f.flush(ctx)
		}
	}
}

// debounce waits out the delay window, coalescing further notifications.
// Returns false when the flusher should stop.
func (f *Flusher) debounce(ctx context.Context) bool {
	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-f.shutdown:
			return false
		case <-f.notifyCh:
			// Coalesce; a newer mutation extends the window.
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(f.delay)
		case <-timer.C:
			return true
		}
	}
}

// flush writes the current snapshot, retrying with exponential backoff.
// A new notification during backoff abandons the retry; the next flush
// supersedes it with newer state anyway.
func (f *Flusher) flush(ctx context.Context) {
	state := f.snapshot()
	backoff := f.backoff

	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := SaveAll(ctx, f.backend, state)
		if err == nil {
			metrics.RecordFlush(float64(time.Since(start).Milliseconds()))
			return
		}

		metrics.RecordFlushError()
		f.logger.Warn(ctx, "persistence flush failed",
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		if attempt >= f.retries {
			f.logger.Error(ctx, "persistence flush gave up; state remains in memory", logger.Error(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-f.shutdown:
			return
		case <-f.notifyCh:
			// Superseded: restart with a fresh snapshot.
			state = f.snapshot()
			backoff = f.backoff
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Stop performs a final synchronous flush and stops the loop.
func (f *Flusher) Stop() {
	close(f.shutdown)
	select {
	case <-f.done:
	case <-time.After(stopFlushTimeout):
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	if err := SaveAll(ctx, f.backend, f.snapshot()); err != nil {
		f.logger.Error(ctx, "final flush failed", logger.Error(err))
	}
}
