package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docpipe/internal/api/response"
	"docpipe/internal/blob"
	"docpipe/internal/store"
	"docpipe/pkg/models"
)

// ArtifactStore is the store surface the artifact handlers depend on.
type ArtifactStore interface {
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.UploadJob, error)
	ListArtifactsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.GeneratedArtifact, error)
	GetArtifactByRef(ctx context.Context, ref string, userID uuid.UUID) (*models.GeneratedArtifact, error)
}

// BlobReader reads artifact bytes by content reference.
type BlobReader interface {
	Get(ref string) ([]byte, error)
}

// NewListArtifactsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/artifacts.
func NewListArtifactsHandler(st ArtifactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}

		// Ownership check before listing; artifacts themselves carry no user.
		if _, err := st.GetJob(r.Context(), jobID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		artifacts, err := st.ListArtifactsByJob(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list artifacts", nil)
			return
		}
		if artifacts == nil {
			artifacts = []*models.GeneratedArtifact{}
		}

		response.JSON(w, artifacts)
	}
}

// NewDownloadArtifactHandler returns an http.HandlerFunc for
// GET /api/v1/artifacts/{ref}. The artifact row gates access: a reference is
// only served to the owner of the job that produced it.
func NewDownloadArtifactHandler(st ArtifactStore, blobs BlobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		ref := chi.URLParam(r, "ref")

		artifact, err := st.GetArtifactByRef(r.Context(), ref, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load artifact", nil)
			return
		}

		data, err := blobs.Get(ref)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidRef) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact content missing", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to read artifact", nil)
			return
		}

		w.Header().Set("Content-Type", artifact.Kind.ContentType())
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", artifactFilename(artifact)))
		w.Write(data)
	}
}

// artifactFilename picks a download name from the artifact kind.
func artifactFilename(a *models.GeneratedArtifact) string {
	switch a.Kind {
	case models.ArtifactCleanedDataset:
		return "cleaned-dataset.csv"
	case models.ArtifactTrendSummary:
		return "trend-summary.json"
	case models.ArtifactChartSpec:
		return "chart-spec.json"
	case models.ArtifactChartImage:
		return "chart.png"
	case models.ArtifactDeck:
		return "deck.json"
	case models.ArtifactMinutes:
		return "minutes.md"
	}
	return string(a.Kind)
}
