package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "docpipe/internal/api/middleware"
	"docpipe/internal/api/response"
	"docpipe/internal/pipeline"
	"docpipe/internal/store"
	"docpipe/pkg/models"
)

// JobLister is the store surface the list handler depends on.
type JobLister interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.UploadJob, int, error)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// pathID parses the named UUID path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return userID, ok
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}

		job, _, err := p.Status(r.Context(), jobID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		response.JSON(w, viewOf(job))
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
// Supports status, kind, page, and limit query parameters.
func NewListJobsHandler(st JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		page := queryInt(q.Get("page"), 1)
		if page < 1 {
			page = 1
		}
		limit := queryInt(q.Get("limit"), defaultPageLimit)
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		filter := store.JobFilter{
			UserID: userID,
			Status: q.Get("status"),
			Kind:   models.SourceKind(q.Get("kind")),
			Page:   page,
			Limit:  limit,
		}

		jobs, total, err := st.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		views := make([]jobView, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, viewOf(job))
		}

		response.Collection(w, views, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
// Cancellation is honored at the next stage boundary, so the response is a
// 202 and the job may still complete its current stage.
func NewCancelJobHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}

		err := p.Cancel(r.Context(), jobID, userID)
		switch {
		case err == nil:
			response.Accepted(w, map[string]any{
				"job_id":           jobID,
				"cancel_requested": true,
			})
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		case errors.Is(err, pipeline.ErrJobTerminal):
			response.Error(w, http.StatusConflict, "JOB_TERMINAL",
				"Job has already finished", nil)
		default:
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to cancel job", nil)
		}
	}
}

// NewResumeJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/resume.
func NewResumeJobHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}

		job, err := p.Resume(r.Context(), jobID, userID)
		switch {
		case err == nil:
			response.Accepted(w, viewOf(job))
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		case errors.Is(err, pipeline.ErrNotResumable):
			response.Error(w, http.StatusConflict, "NOT_RESUMABLE",
				"Only failed jobs can be resumed", nil)
		default:
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to resume job", nil)
		}
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}

		err := p.Delete(r.Context(), jobID, userID)
		switch {
		case err == nil:
			response.NoContent(w)
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		case errors.Is(err, pipeline.ErrJobTerminal):
			response.Error(w, http.StatusConflict, "JOB_ACTIVE",
				"Only completed, failed, or cancelled jobs can be deleted", nil)
		default:
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to delete job", nil)
		}
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
