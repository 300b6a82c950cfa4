package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

type fakeService struct {
	jobs      map[int64]types.Job
	submitted []engine.Request
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[int64]types.Job{
		7: {ID: 7, FileName: "seven.ts", Status: types.StatusInProgress, DownloadedBytes: 50, TotalBytes: 200},
		3: {ID: 3, FileName: "three.ts", Status: types.StatusSucceeded, DownloadedBytes: 10, TotalBytes: 10},
	}}
}

func (f *fakeService) Submit(_ context.Context, req engine.Request) (int64, error) {
	f.submitted = append(f.submitted, req)
	id := int64(100 + len(f.submitted))
	f.jobs[id] = types.Job{ID: id, SourceURL: req.URL, FileName: req.FileName, Status: types.StatusInProgress}
	return id, nil
}

func (f *fakeService) Pause(_ context.Context, id int64) error {
	job, ok := f.jobs[id]
	if !ok {
		return types.ErrJobNotFound
	}
	if job.Status != types.StatusInProgress {
		return fmt.Errorf("%w: %s", engine.ErrInvalidState, job.Status)
	}
	job.Status = types.StatusPausedByUser
	f.jobs[id] = job
	return nil
}

func (f *fakeService) Resume(_ context.Context, id int64) error {
	job, ok := f.jobs[id]
	if !ok {
		return types.ErrJobNotFound
	}
	job.Status = types.StatusInProgress
	f.jobs[id] = job
	return nil
}

func (f *fakeService) Delete(_ context.Context, id int64) error {
	if _, ok := f.jobs[id]; !ok {
		return types.ErrJobNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeService) Get(id int64) (types.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return types.Job{}, types.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeService) List() []types.Job {
	return []types.Job{f.jobs[7], f.jobs[3]}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmit(t *testing.T) {
	svc := newFakeService()
	h := NewRouter(NewHandlers(svc))

	rec := do(t, h, http.MethodPost, "/jobs/", `{"url":"https://cdn.example.com/v/index.m3u8","file_name":"v.ts","headers":{"Referer":"https://example.com"},"support_chunks":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp submitResp
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ID != 101 || resp.Status != "in-progress" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(svc.submitted) != 1 || svc.submitted[0].Headers["Referer"] != "https://example.com" || !svc.submitted[0].SupportChunks {
		t.Errorf("request not forwarded intact: %+v", svc.submitted)
	}
	if rec.Header().Get(HeaderXRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestSubmitValidation(t *testing.T) {
	h := NewRouter(NewHandlers(newFakeService()))
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing url", `{"file_name":"a.ts"}`, "url"},
		{"bad url", `{"url":"not a url","file_name":"a.ts"}`, "url"},
		{"long file name", `{"url":"https://example.com/a.m3u8","file_name":"` + strings.Repeat("a", 256) + `"}`, "file_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/jobs/", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp errorResp
			json.NewDecoder(rec.Body).Decode(&resp)
			if _, ok := resp.Fields[tc.field]; !ok {
				t.Errorf("expected error for field %s, got %+v", tc.field, resp)
			}
		})
	}
	if rec := do(t, h, http.MethodPost, "/jobs/", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestSubmitWithoutFileName(t *testing.T) {
	svc := newFakeService()
	h := NewRouter(NewHandlers(svc))
	rec := do(t, h, http.MethodPost, "/jobs/", `{"url":"https://cdn.example.com/v/index.m3u8"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.submitted) != 1 || svc.submitted[0].FileName != "" {
		t.Errorf("empty file name should reach the engine unchanged, got %+v", svc.submitted)
	}
}

func TestGetAndList(t *testing.T) {
	h := NewRouter(NewHandlers(newFakeService()))

	rec := do(t, h, http.MethodGet, "/jobs/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job JobDTO
	json.NewDecoder(rec.Body).Decode(&job)
	if job.ID != 7 || job.Percent != 25 || job.Status != types.StatusInProgress {
		t.Errorf("unexpected job %+v", job)
	}

	rec = do(t, h, http.MethodGet, "/jobs/", "")
	var jobs []JobDTO
	json.NewDecoder(rec.Body).Decode(&jobs)
	if len(jobs) != 2 || jobs[0].ID != 7 || jobs[1].ID != 3 {
		t.Errorf("unexpected list %+v", jobs)
	}

	if rec := do(t, h, http.MethodGet, "/jobs/99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/jobs/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestPauseResumeDelete(t *testing.T) {
	svc := newFakeService()
	h := NewRouter(NewHandlers(svc))

	rec := do(t, h, http.MethodPost, "/jobs/7/pause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", rec.Code)
	}
	if svc.jobs[7].Status != types.StatusPausedByUser {
		t.Errorf("job not paused")
	}
	if rec := do(t, h, http.MethodPost, "/jobs/3/pause", ""); rec.Code != http.StatusConflict {
		t.Errorf("pausing a finished job: expected 409, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/jobs/7/resume", ""); rec.Code != http.StatusOK {
		t.Errorf("resume: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/jobs/7", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	if _, ok := svc.jobs[7]; ok {
		t.Error("job not deleted")
	}
}

func TestClientRoundTrip(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(NewRouter(NewHandlers(svc)))
	defer srv.Close()
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), utils.NewHTTPClient(utils.HTTPClientConfig{}))
	ctx := context.Background()

	id, err := c.Submit(ctx, engine.Request{URL: "https://example.com/a.m3u8", FileName: "a.ts"})
	if err != nil || id != 101 {
		t.Fatalf("submit: id=%d err=%v", id, err)
	}
	jobs, err := c.List(ctx)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("list: %v %+v", err, jobs)
	}
	job, err := c.Pause(ctx, 7)
	if err != nil || job.Status != types.StatusPausedByUser {
		t.Fatalf("pause: %v %+v", err, job)
	}
	if err := c.Delete(ctx, 42); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error for missing job, got %v", err)
	}
}
