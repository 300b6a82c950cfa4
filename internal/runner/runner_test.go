package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/hlsget/internal/types"
)

func TestScheduleReplacesAttempt(t *testing.T) {
	r := New(context.Background(), 4)
	var live, peak atomic.Int32
	firstCause := make(chan error, 1)
	started := make(chan struct{})

	r.Schedule(1, func(ctx context.Context) {
		live.Add(1)
		defer live.Add(-1)
		close(started)
		<-ctx.Done()
		firstCause <- context.Cause(ctx)
	})
	<-started

	second := make(chan struct{})
	r.Schedule(1, func(ctx context.Context) {
		if n := live.Add(1); n > peak.Load() {
			peak.Store(n)
		}
		defer live.Add(-1)
		close(second)
	})
	<-second
	r.Wait()

	if p := peak.Load(); p != 1 {
		t.Errorf("expected the old attempt joined before the new one started, saw %d live", p)
	}
	cause := <-firstCause
	if !errors.Is(cause, ErrSuperseded) || !errors.Is(cause, types.ErrCancelled) {
		t.Errorf("expected superseded cause, got %v", cause)
	}
}

func TestWorkersBound(t *testing.T) {
	r := New(context.Background(), 1)
	var live, peak atomic.Int32
	for id := int64(1); id <= 3; id++ {
		r.Schedule(id, func(ctx context.Context) {
			n := live.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			live.Add(-1)
		})
	}
	r.Wait()
	if p := peak.Load(); p != 1 {
		t.Errorf("expected one attempt at a time, saw %d", p)
	}
}

func TestCancelJoins(t *testing.T) {
	r := New(context.Background(), 2)
	var finished atomic.Bool
	started := make(chan struct{})
	r.Schedule(5, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})
	<-started
	if !r.Cancel(5, types.ErrPaused) {
		t.Fatal("expected an attempt to cancel")
	}
	if !finished.Load() {
		t.Error("Cancel returned before the attempt stopped")
	}
	if r.Running(5) {
		t.Error("attempt still registered after cancel")
	}
	if r.Cancel(5, types.ErrPaused) {
		t.Error("second cancel should find nothing")
	}
}

func TestCancelWhileQueued(t *testing.T) {
	r := New(context.Background(), 1)
	block := make(chan struct{})
	started := make(chan struct{})
	r.Schedule(1, func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started
	var ran atomic.Bool
	r.Schedule(2, func(ctx context.Context) { ran.Store(true) })
	r.Cancel(2, types.ErrPaused)
	close(block)
	r.Wait()
	if ran.Load() {
		t.Error("queued attempt ran after being cancelled")
	}
}
