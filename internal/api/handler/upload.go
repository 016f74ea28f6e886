package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	mw "docpipe/internal/api/middleware"
	"docpipe/internal/api/response"
	"docpipe/internal/pipeline"
	"docpipe/pkg/models"
)

// Pipeline is the coordinator surface the job handlers depend on.
type Pipeline interface {
	Submit(ctx context.Context, userID uuid.UUID, kind models.SourceKind, filename string, data []byte) (*models.UploadJob, error)
	Status(ctx context.Context, jobID, userID uuid.UUID) (*models.UploadJob, int, error)
	Cancel(ctx context.Context, jobID, userID uuid.UUID) error
	Resume(ctx context.Context, jobID, userID uuid.UUID) (*models.UploadJob, error)
	Delete(ctx context.Context, jobID, userID uuid.UUID) error
}

// jobView is the wire representation of a job plus its progress percentage.
type jobView struct {
	*models.UploadJob
	Progress int `json:"progress"`
}

func viewOf(job *models.UploadJob) jobView {
	return jobView{UploadJob: job, Progress: models.Progress(job.Status)}
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/uploads.
// The upload is accepted and processed asynchronously; clients poll the
// returned job for progress.
func NewUploadHandler(p Pipeline, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge,
					"UPLOAD_TOO_LARGE", "Upload exceeds the size limit", nil)
				return
			}
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Expected multipart/form-data body", nil)
			return
		}

		kind := models.SourceKind(r.FormValue("kind"))
		if !models.ValidSourceKind(kind) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of spreadsheet, slide-template, transcript", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required", nil)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable upload", nil)
			return
		}
		if len(data) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file is empty", nil)
			return
		}

		job, err := p.Submit(r.Context(), userID, kind, header.Filename, data)
		if err != nil {
			if errors.Is(err, pipeline.ErrUnsupportedKind) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to accept upload", nil)
			return
		}

		response.Accepted(w, viewOf(job))
	}
}
