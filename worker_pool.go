package ecs

import (
	"sync"
	"time"
)

// debounceDispatcher coalesces rapid successive change-tracker writes into a
// single flush after a quiet period. Adapted from the teacher's workerPool
// (originally a goroutine pool dispatching async work-group jobs): the
// kernel's scheduling model runs systems on a single thread (spec §5), so
// there is no async job queue left to drive. What survives is the same
// close-once/safe-dispatch discipline, now driving a timer-based flush
// instead of worker goroutines — the debounced auto-tracking write path is
// the one legitimate place outside plugin install the spec still allows a
// background timer.
type debounceDispatcher struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	flush    func()
	closed   chan struct{}
	once     sync.Once
}

// newDebounceDispatcher builds a dispatcher that calls flush once interval
// has elapsed since the last Notify call. interval <= 0 disables debouncing
// entirely: Notify becomes a no-op and callers are expected to flush
// synchronously instead.
func newDebounceDispatcher(interval time.Duration, flush func()) *debounceDispatcher {
	return &debounceDispatcher{interval: interval, flush: flush, closed: make(chan struct{})}
}

// Notify (re)arms the debounce timer. Repeated calls within interval keep
// postponing the flush, mirroring a standard trailing-edge debounce.
func (d *debounceDispatcher) Notify() {
	if d == nil || d.interval <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.closed:
		return
	default:
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.safeFlush)
}

func (d *debounceDispatcher) safeFlush() {
	defer func() { recover() }()
	select {
	case <-d.closed:
		return
	default:
	}
	d.flush()
}

// Close stops any pending timer and prevents further flushes from firing.
func (d *debounceDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.closed)
		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
	})
}
