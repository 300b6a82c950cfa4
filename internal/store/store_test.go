package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tanq16/hlsget/internal/types"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int64{20, 5, 31} {
		job := types.Job{ID: id, SourceURL: "https://example.com/a.m3u8", FileName: "a.ts", Status: types.StatusInProgress}
		if err := s.Upsert(ctx, job); err != nil {
			t.Fatalf("upsert %d: %v", id, err)
		}
	}
	if err := s.Upsert(ctx, types.Job{ID: 5, FileName: "b.ts", Status: types.StatusSucceeded, DownloadedBytes: 10, TotalBytes: 10}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileName != "b.ts" || got.Status != types.StatusSucceeded {
		t.Errorf("upsert did not replace job 5: %+v", got)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, j := range list {
		ids = append(ids, j.ID)
	}
	if len(ids) != 3 || ids[0] != 31 || ids[1] != 20 || ids[2] != 5 {
		t.Errorf("expected ids [31 20 5], got %v", ids)
	}

	if err := s.Delete(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, 20); !errors.Is(err, types.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after delete, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemoryIsolatesHeaders(t *testing.T) {
	m := NewMemory()
	headers := map[string]string{"Referer": "a"}
	m.Upsert(context.Background(), types.Job{ID: 1, Headers: headers})
	headers["Referer"] = "b"
	got, _ := m.Get(context.Background(), 1)
	if got.Headers["Referer"] != "a" {
		t.Error("store shares header map with caller")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "jobs.yaml")
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, f)

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list, _ := reopened.List(context.Background())
	if len(list) != 2 || list[0].ID != 31 || list[1].ID != 5 {
		t.Fatalf("unexpected persisted jobs: %+v", list)
	}
	if list[1].Status != types.StatusSucceeded || list[1].DownloadedBytes != 10 {
		t.Errorf("persisted job lost fields: %+v", list[1])
	}
}
