package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

func segmentBody(i int) []byte {
	return bytes.Repeat([]byte{byte('a' + i)}, 100+i*37)
}

func manifest(n int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:4\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "#EXTINF:4.0,\nseg/%d.ts\n", i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

func segmentIndex(path string) int {
	i, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(path, "/seg/"), ".ts"))
	return i
}

func newJob(t *testing.T, srvURL string) types.Job {
	return types.Job{
		ID:                   1,
		SourceURL:            srvURL + "/index.m3u8",
		FileName:             "video.ts",
		DestinationDirectory: t.TempDir(),
		Kind:                 types.KindPlaylist,
	}
}

func newCoordinator(t *testing.T, parallelism int) *Coordinator {
	return New(utils.NewHTTPClient(utils.HTTPClientConfig{}), Config{Parallelism: parallelism, ScratchRoot: t.TempDir()})
}

func TestDownloadMergesInOrder(t *testing.T) {
	const n = 12
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index.m3u8" {
			w.Write([]byte(manifest(n)))
			return
		}
		w.Write(segmentBody(segmentIndex(r.URL.Path)))
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	c := newCoordinator(t, 4)
	out, err := c.Download(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var want []byte
	for i := 0; i < n; i++ {
		want = append(want, segmentBody(i)...)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("merged output differs from ordered concatenation")
	}
	if _, err := os.Stat(c.TempDir()); !os.IsNotExist(err) {
		t.Errorf("temp dir should be removed after success")
	}
	downloaded, total := c.Progress()
	if downloaded != uint64(len(want)) || total != uint64(len(want)) {
		t.Errorf("expected progress %d/%d, got %d/%d", len(want), len(want), downloaded, total)
	}
	if cur := c.Cursor(); cur.CompletedSegments != n {
		t.Errorf("expected %d completed segments, got %d", n, cur.CompletedSegments)
	}
}

func TestParallelismBound(t *testing.T) {
	var inFlight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		w.Write(segmentBody(segmentIndex(r.URL.Path)))
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	var segments []types.Segment
	for i := 0; i < 5; i++ {
		segments = append(segments, types.Segment{Index: i, URL: fmt.Sprintf("%s/seg/%d.ts", srv.URL, i)})
	}
	start := time.Now()
	if _, err := newCoordinator(t, 2).Run(context.Background(), job, segments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", p)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("5 segments at parallelism 2 finished too fast: %v", elapsed)
	}
}

func TestSegmentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index.m3u8" {
			w.Write([]byte(manifest(4)))
			return
		}
		i := segmentIndex(r.URL.Path)
		if i == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(segmentBody(i))
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	_, err := newCoordinator(t, 1).Download(context.Background(), job)
	var serverErr *types.ServerError
	if !errors.As(err, &serverErr) || serverErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected server error 500, got %v", err)
	}
	if types.Classify(err) != types.OutcomeFailed {
		t.Errorf("expected failed outcome, got %v", types.Classify(err))
	}
	if _, err := os.Stat(job.OutputPath()); !os.IsNotExist(err) {
		t.Errorf("no output file should exist after failure")
	}
}

func TestPauseJoinsAllSegments(t *testing.T) {
	const n = 3
	started := make(chan struct{}, n)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		started <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	job := newJob(t, srv.URL)
	var segments []types.Segment
	for i := 0; i < n; i++ {
		segments = append(segments, types.Segment{Index: i, URL: fmt.Sprintf("%s/seg/%d.ts", srv.URL, i)})
	}
	c := newCoordinator(t, n)
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, job, segments)
		done <- err
	}()
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("segments never started")
		}
	}
	cancel(types.ErrPaused)

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !errors.Is(err, types.ErrPaused) {
		t.Errorf("expected paused cause, got %v", err)
	}
	if types.Classify(err) != types.OutcomeCancelled {
		t.Errorf("expected cancelled outcome, got %v", types.Classify(err))
	}
	if a := c.Active(); a != 0 {
		t.Errorf("expected no active segment tasks after Run returned, got %d", a)
	}
	if _, err := os.Stat(job.OutputPath()); !os.IsNotExist(err) {
		t.Errorf("no output file should exist after pause")
	}
	if _, err := os.Stat(c.TempDir()); err != nil {
		t.Errorf("temp dir with partial segments should be kept: %v", err)
	}
}
