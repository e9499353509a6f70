package ecs

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceDispatcherCoalescesNotifies(t *testing.T) {
	var flushes atomic.Int32
	d := newDebounceDispatcher(10*time.Millisecond, func() { flushes.Add(1) })
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.Notify()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(30 * time.Millisecond)
	if flushes.Load() != 1 {
		t.Fatalf("expected exactly 1 coalesced flush, got %d", flushes.Load())
	}
}

func TestDebounceDispatcherZeroIntervalDisabled(t *testing.T) {
	var flushes atomic.Int32
	d := newDebounceDispatcher(0, func() { flushes.Add(1) })
	defer d.Close()

	d.Notify()
	time.Sleep(10 * time.Millisecond)
	if flushes.Load() != 0 {
		t.Fatalf("expected no flush when debouncing is disabled, got %d", flushes.Load())
	}
}

func TestDebounceDispatcherCloseStopsPendingFlush(t *testing.T) {
	var flushes atomic.Int32
	d := newDebounceDispatcher(5*time.Millisecond, func() { flushes.Add(1) })
	d.Notify()
	d.Close()

	time.Sleep(15 * time.Millisecond)
	if flushes.Load() != 0 {
		t.Fatalf("expected closed dispatcher to suppress pending flush, got %d", flushes.Load())
	}
}

func TestDebounceDispatcherNilSafe(t *testing.T) {
	var d *debounceDispatcher
	d.Notify()
	d.Close()
}
