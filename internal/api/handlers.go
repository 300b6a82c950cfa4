package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/types"
)

// Service is the part of the engine the HTTP surface drives.
type Service interface {
	Submit(ctx context.Context, req engine.Request) (int64, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Get(id int64) (types.Job, error)
	List() []types.Job
}

type Handlers struct {
	svc Service
}

func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

type submitReq struct {
	URL                  string            `json:"url"`
	FileName             string            `json:"file_name"`
	DestinationDirectory string            `json:"destination_directory"`
	MimeType             string            `json:"mime_type"`
	Headers              map[string]string `json:"headers"`
	ShowNotification     bool              `json:"show_notification"`
	SupportChunks        bool              `json:"support_chunks"`
}

type submitResp struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// JobDTO is a job as served by the API.
type JobDTO struct {
	types.Job
	Percent int `json:"percent"`
}

type errorResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (req *submitReq) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.URL, validation.Required, is.URL),
		validation.Field(&req.FileName, validation.Length(1, 255)),
		validation.Field(&req.MimeType, validation.Length(0, 255)),
	)
}

func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.svc.Submit(r.Context(), engine.Request{
		URL:                  req.URL,
		FileName:             req.FileName,
		DestinationDirectory: req.DestinationDirectory,
		MimeType:             req.MimeType,
		Headers:              req.Headers,
		ShowNotification:     req.ShowNotification,
		SupportChunks:        req.SupportChunks,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResp{ID: id, Status: types.StatusInProgress.String()})
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.List()
	out := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, JobDTO{Job: job, Percent: job.Percent()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, JobDTO{Job: job, Percent: job.Percent()})
}

func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.Pause)
}

func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.Resume)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	job, err := h.svc.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, JobDTO{Job: job, Percent: job.Percent()})
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("job id must be an integer"))
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, code int, err error) {
	resp := errorResp{Error: err.Error()}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		resp.Error = "validation failed"
		resp.Fields = make(map[string]string, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			resp.Fields[field] = fieldErr.Error()
		}
	}
	if code >= http.StatusInternalServerError {
		log.Error().Str("op", "api/handlers").Err(err).Msg("Request failed")
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Str("op", "api/handlers").Err(err).Msg("Could not write response")
	}
}
