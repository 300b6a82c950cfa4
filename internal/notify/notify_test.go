package notify

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (r *recorder) add(s string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) ShowProgress(id int64, percent int)    { r.add("progress") }
func (r *recorder) ShowSuccess(id int64, fileName string) { r.add("success:" + fileName) }
func (r *recorder) ShowFailure(id int64, fileName string) { r.add("failure:" + fileName) }
func (r *recorder) Cancel(id int64)                       { r.add("cancel") }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type panicky struct{ Nop }

func (panicky) ShowSuccess(int64, string) { panic("sink exploded") }

func TestAsyncNeverBlocks(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	a := NewAsync(rec)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			a.ShowProgress(1, i%100)
		}
		a.ShowSuccess(1, "video.ts")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier blocked the caller")
	}
	close(rec.block)
	a.Close()

	events := rec.snapshot()
	if len(events) == 0 || events[len(events)-1] != "success:video.ts" {
		t.Fatalf("expected success delivered last, got %v", events)
	}
	successes := 0
	for _, e := range events {
		if strings.HasPrefix(e, "success") {
			successes++
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
}

func TestAsyncRecoversPanics(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(Multi{panicky{}, rec})
	a.ShowSuccess(1, "a.ts")
	a.ShowFailure(2, "b.ts")
	a.Close()
	events := rec.snapshot()
	if len(events) != 1 || events[0] != "failure:b.ts" {
		t.Errorf("expected delivery to continue after panic, got %v", events)
	}
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)
	term.ShowSuccess(3, "movie.mp4")
	term.ShowFailure(4, "clip.ts")
	out := buf.String()
	if !strings.Contains(out, "movie.mp4 downloaded") || !strings.Contains(out, "clip.ts failed") {
		t.Errorf("unexpected terminal output: %q", out)
	}
}
