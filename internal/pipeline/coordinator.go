// Package pipeline drives upload jobs through the cleaning, analysis, and
// generation stages. The Coordinator is the only writer of job status:
// handlers and background workers request transitions here, and anything
// that violates the state machine is rejected rather than written.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docpipe/internal/ai"
	"docpipe/internal/blob"
	"docpipe/internal/cache"
	"docpipe/internal/clean"
	"docpipe/internal/config"
	"docpipe/internal/format"
	"docpipe/internal/generate"
	"docpipe/internal/store"
	"docpipe/pkg/models"
)

const (
	statusTTL     = 30 * time.Minute
	cancelFlagTTL = 24 * time.Hour
)

// validNext encodes the state machine. Failed exits only through Resume,
// which is handled explicitly; nothing transitions out of completed or
// cancelled.
var validNext = map[string][]string{
	models.JobStatusUploaded:   {models.JobStatusCleaning, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusCleaning:   {models.JobStatusCleaned, models.JobStatusFailed},
	models.JobStatusCleaned:    {models.JobStatusAnalyzing, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusAnalyzing:  {models.JobStatusAnalyzed, models.JobStatusFailed},
	models.JobStatusAnalyzed:   {models.JobStatusGenerating, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusGenerating: {models.JobStatusCompleted, models.JobStatusFailed},
}

func transitionAllowed(from, to string) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Coordinator owns the pipeline state machine and the background workers
// that execute it.
type Coordinator struct {
	store    store.Store
	cache    cache.Cache
	blobs    *blob.Store
	ai       *ai.Orchestrator
	cleaning clean.Options
	deadline time.Duration

	wg sync.WaitGroup
}

// New wires a Coordinator. The cleaning thresholds and the per-job deadline
// come from configuration.
func New(st store.Store, ca cache.Cache, blobs *blob.Store, orchestrator *ai.Orchestrator, cfg *config.Config) *Coordinator {
	return &Coordinator{
		store: st,
		cache: ca,
		blobs: blobs,
		ai:    orchestrator,
		cleaning: clean.Options{
			InferenceRatio: cfg.Cleaning.InferenceRatio,
			MaxCategories:  cfg.Cleaning.MaxCategories,
			OutlierMethod:  cfg.Cleaning.OutlierMethod,
			IQRFactor:      cfg.Cleaning.IQRFactor,
			ZScoreLimit:    cfg.Cleaning.ZScoreLimit,
		},
		deadline: cfg.AI.JobDeadline,
	}
}

// Wait blocks until every background worker has finished. Used on shutdown
// and in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Submit stores the upload, creates the job, and dispatches the pipeline in
// a background goroutine. Returns the job immediately.
func (c *Coordinator) Submit(ctx context.Context, userID uuid.UUID, kind models.SourceKind, filename string, data []byte) (*models.UploadJob, error) {
	if !models.ValidSourceKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	ref, err := c.blobs.Put(data)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	now := time.Now().UTC()
	job := &models.UploadJob{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		SourceRef:  ref,
		SourceName: filename,
		Status:     models.JobStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	_ = c.cache.SetJobStatus(ctx, job.ID, job.Status, statusTTL)

	c.dispatch(job)
	return job, nil
}

// Status returns the job with its progress percentage.
func (c *Coordinator) Status(ctx context.Context, jobID, userID uuid.UUID) (*models.UploadJob, int, error) {
	job, err := c.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, 0, err
	}
	return job, models.Progress(job.Status), nil
}

// Cancel flags a job for cancellation. The flag is honored at the next
// stage boundary; a stage already running is never interrupted mid-flight.
func (c *Coordinator) Cancel(ctx context.Context, jobID, userID uuid.UUID) error {
	job, err := c.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if models.TerminalStatus(job.Status) {
		return ErrJobTerminal
	}
	return c.cache.MarkJobCancelled(ctx, jobID, cancelFlagTTL)
}

// Resume restarts a failed job. With a cleaned checkpoint on record the
// pipeline re-enters at analysis; without one it starts over from cleaning.
func (c *Coordinator) Resume(ctx context.Context, jobID, userID uuid.UUID) (*models.UploadJob, error) {
	job, err := c.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed {
		return nil, ErrNotResumable
	}

	restart := models.JobStatusUploaded
	if job.CleanedRef != nil {
		restart = models.JobStatusCleaned
	}
	// Compare-and-swap on failed so concurrent resumes dispatch one worker.
	err = c.store.UpdateJobStatus(ctx, jobID, restart,
		store.ClearError(), store.WithExpectedStatus(models.JobStatusFailed))
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, ErrNotResumable
	}
	if err != nil {
		return nil, fmt.Errorf("resuming job: %w", err)
	}
	_ = c.cache.SetJobStatus(ctx, jobID, restart, statusTTL)
	_ = c.cache.Delete(ctx, cache.JobCancelKey(jobID))

	job.Status = restart
	job.ErrorCode = nil
	job.ErrorMessage = nil

	c.dispatch(job)
	return job, nil
}

// Delete removes a terminal job, its artifacts, and their blobs.
func (c *Coordinator) Delete(ctx context.Context, jobID, userID uuid.UUID) error {
	job, err := c.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if !models.TerminalStatus(job.Status) {
		return fmt.Errorf("%w: cancel the job first", ErrJobTerminal)
	}

	artifacts, err := c.store.ListArtifactsByJob(ctx, jobID)
	if err != nil {
		return err
	}
	refs := []string{job.SourceRef}
	if job.CleanedRef != nil {
		refs = append(refs, *job.CleanedRef)
	}
	for _, a := range artifacts {
		refs = append(refs, a.Ref)
	}

	if err := c.store.DeleteJob(ctx, jobID, userID); err != nil {
		return err
	}
	if err := c.blobs.Delete(refs); err != nil {
		slog.Warn("deleting job blobs", "error", err, "job_id", jobID)
	}
	_ = c.cache.Delete(ctx, cache.JobStatusKey(jobID))
	return nil
}

func (c *Coordinator) dispatch(job *models.UploadJob) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(job)
	}()
}

// cleaned is the in-memory form of the cleaning checkpoint, one variant per
// source kind.
type cleaned struct {
	Kind       models.SourceKind      `json:"kind"`
	Dataset    *models.CleanedDataset `json:"dataset,omitempty"`
	Template   *models.SlideTemplate  `json:"template,omitempty"`
	Transcript string                 `json:"transcript,omitempty"`
}

// run executes the pipeline for one job. It recovers from panics and always
// leaves the job in a terminal or resumable state.
func (c *Coordinator) run(job *models.UploadJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deadline)
	defer cancel()

	stage := models.StageCleaning
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in pipeline run", "error", r, "job_id", job.ID)
			c.fail(job, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	if c.cancelledAtBoundary(ctx, job) {
		return
	}

	// Cleaning. A checkpointed job skips straight past it.
	var checkpoint *cleaned
	if job.CleanedRef != nil {
		doc, err := c.blobs.Get(*job.CleanedRef)
		if err == nil {
			var cp cleaned
			if err = json.Unmarshal(doc, &cp); err == nil {
				checkpoint = &cp
			}
		}
		if checkpoint == nil {
			slog.Warn("cleaned checkpoint unreadable, re-cleaning", "job_id", job.ID, "error", err)
		}
	}

	if checkpoint == nil {
		if !c.transition(ctx, job, models.JobStatusCleaning, store.WithStage(models.StageCleaning)) {
			return
		}
		cp, err := c.cleanStage(ctx, job)
		if err != nil {
			c.fail(job, models.StageCleaning, err)
			return
		}
		checkpoint = cp
	}

	if c.cancelledAtBoundary(ctx, job) {
		return
	}

	// Analysis.
	stage = models.StageAnalyzing
	if !c.transition(ctx, job, models.JobStatusAnalyzing, store.WithStage(models.StageAnalyzing)) {
		return
	}
	payload, err := c.analyzeStage(ctx, checkpoint)
	if err != nil {
		c.fail(job, models.StageAnalyzing, err)
		return
	}
	if !c.transition(ctx, job, models.JobStatusAnalyzed) {
		return
	}

	if c.cancelledAtBoundary(ctx, job) {
		return
	}

	// Generation.
	stage = models.StageGenerating
	if !c.transition(ctx, job, models.JobStatusGenerating, store.WithStage(models.StageGenerating)) {
		return
	}
	if err := c.generateStage(ctx, job, checkpoint, payload); err != nil {
		c.fail(job, models.StageGenerating, err)
		return
	}

	if !c.transition(ctx, job, models.JobStatusCompleted) {
		return
	}
	slog.Info("pipeline completed", "job_id", job.ID, "kind", job.Kind)
}

// cleanStage decodes and cleans the upload, writes the checkpoint blob, and
// records the cleaned-dataset artifact for spreadsheets.
func (c *Coordinator) cleanStage(ctx context.Context, job *models.UploadJob) (*cleaned, error) {
	raw, err := c.blobs.Get(job.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("loading upload: %w", err)
	}

	cp := &cleaned{Kind: job.Kind}
	switch job.Kind {
	case models.SourceSpreadsheet:
		table, err := format.DecodeTable(raw, job.SourceName)
		if err != nil {
			return nil, err
		}
		ds, err := clean.Table(table, c.cleaning)
		if err != nil {
			return nil, err
		}
		cp.Dataset = ds
	case models.SourceSlideTemplate:
		tmpl, err := format.DecodeTemplate(raw)
		if err != nil {
			return nil, err
		}
		cp.Template = tmpl
	case models.SourceTranscript:
		text, err := format.DecodeTranscript(raw)
		if err != nil {
			return nil, err
		}
		text, err = clean.Transcript(text)
		if err != nil {
			return nil, err
		}
		cp.Transcript = text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, job.Kind)
	}

	doc, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encoding checkpoint: %w", err)
	}
	ref, err := c.blobs.Put(doc)
	if err != nil {
		return nil, fmt.Errorf("storing checkpoint: %w", err)
	}

	if !c.transition(ctx, job, models.JobStatusCleaned, store.WithCleanedRef(ref)) {
		return nil, errors.New("job no longer cleanable")
	}
	job.CleanedRef = &ref

	if cp.Dataset != nil {
		csvDoc, err := format.EncodeTableCSV(cp.Dataset)
		if err != nil {
			return nil, fmt.Errorf("encoding cleaned csv: %w", err)
		}
		csvRef, err := c.blobs.Put(csvDoc)
		if err != nil {
			return nil, err
		}
		if err := c.recordArtifact(ctx, job.ID, models.ArtifactCleanedDataset, csvRef, nil); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

func (c *Coordinator) analyzeStage(ctx context.Context, cp *cleaned) (*models.AnalysisPayload, error) {
	switch cp.Kind {
	case models.SourceSpreadsheet:
		trends, err := c.ai.AnalyzeTrends(ctx, cp.Dataset)
		if err != nil {
			return nil, err
		}
		return &models.AnalysisPayload{Task: models.TaskTrendSummary, Trends: trends}, nil
	case models.SourceSlideTemplate:
		outline, err := c.ai.OutlineSlides(ctx, cp.Template)
		if err != nil {
			return nil, err
		}
		return &models.AnalysisPayload{Task: models.TaskSlideOutline, Outline: outline}, nil
	case models.SourceTranscript:
		minutes, err := c.ai.SummarizeMeeting(ctx, cp.Transcript)
		if err != nil {
			return nil, err
		}
		return &models.AnalysisPayload{Task: models.TaskMeetingSummary, Minutes: minutes}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, cp.Kind)
}

func (c *Coordinator) generateStage(ctx context.Context, job *models.UploadJob, cp *cleaned, payload *models.AnalysisPayload) error {
	switch cp.Kind {
	case models.SourceSpreadsheet:
		return c.generateCharts(ctx, job, cp.Dataset, payload.Trends)
	case models.SourceSlideTemplate:
		deck, warnings := generate.BuildDeck(cp.Template, payload.Outline)
		doc, err := format.EncodeDeckJSON(deck)
		if err != nil {
			return err
		}
		ref, err := c.blobs.Put(doc)
		if err != nil {
			return err
		}
		return c.recordArtifact(ctx, job.ID, models.ArtifactDeck, ref, warnings)
	case models.SourceTranscript:
		md := generate.RenderMinutes(payload.Minutes, job.SourceName)
		ref, err := c.blobs.Put(md)
		if err != nil {
			return err
		}
		return c.recordArtifact(ctx, job.ID, models.ArtifactMinutes, ref, nil)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedKind, cp.Kind)
}

// generateCharts writes the trend-summary, chart-spec and chart-image
// artifacts. The analyzed trends drive the chart specs; when no trend names
// a numeric column the dataset's column shapes pick a single fallback chart.
// Per-chart encodings are independent, so they run concurrently.
func (c *Coordinator) generateCharts(ctx context.Context, job *models.UploadJob, ds *models.CleanedDataset, summary *models.TrendSummary) error {
	if summary != nil {
		doc, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encoding trend summary: %w", err)
		}
		ref, err := c.blobs.Put(doc)
		if err != nil {
			return err
		}
		if err := c.recordArtifact(ctx, job.ID, models.ArtifactTrendSummary, ref, nil); err != nil {
			return err
		}
	}

	specs := generate.BuildTrendCharts(ds, summary)
	if len(specs) == 0 {
		spec, err := generate.BuildChartSpec(ds)
		if errors.Is(err, generate.ErrNoNumericColumn) {
			// Nothing to chart is not a failure; the cleaned dataset and
			// trend summary remain the job's outputs.
			slog.Info("skipping chart generation", "job_id", job.ID, "reason", err)
			return nil
		}
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		g.Go(func() error {
			doc, err := generate.EncodeChartSpec(spec)
			if err != nil {
				return err
			}
			ref, err := c.blobs.Put(doc)
			if err != nil {
				return err
			}
			return c.recordArtifact(gctx, job.ID, models.ArtifactChartSpec, ref, nil)
		})
		g.Go(func() error {
			png, err := generate.RenderChartPNG(spec)
			if err != nil {
				return err
			}
			ref, err := c.blobs.Put(png)
			if err != nil {
				return err
			}
			return c.recordArtifact(gctx, job.ID, models.ArtifactChartImage, ref, nil)
		})
	}
	return g.Wait()
}

func (c *Coordinator) recordArtifact(ctx context.Context, jobID uuid.UUID, kind models.ArtifactKind, ref string, warnings []string) error {
	if warnings == nil {
		warnings = []string{}
	}
	return c.store.CreateArtifact(ctx, &models.GeneratedArtifact{
		ID:        uuid.New(),
		JobID:     jobID,
		Kind:      kind,
		Ref:       ref,
		Warnings:  warnings,
		CreatedAt: time.Now().UTC(),
	})
}

// transition moves the job forward, enforcing the state machine. The write
// is a compare-and-swap on the status the worker last observed, so a slower
// worker can never overwrite a row another writer already moved on (or into
// a terminal state). Returns false when the move is rejected or the write
// fails; the job is left untouched in that case.
func (c *Coordinator) transition(ctx context.Context, job *models.UploadJob, to string, opts ...store.JobUpdateOption) bool {
	if !transitionAllowed(job.Status, to) {
		slog.Error("rejected status transition", "job_id", job.ID, "from", job.Status, "to", to)
		return false
	}
	opts = append(opts, store.WithExpectedStatus(job.Status))
	if err := c.store.UpdateJobStatus(ctx, job.ID, to, opts...); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			slog.Warn("status transition lost race", "job_id", job.ID, "from", job.Status, "to", to)
			return false
		}
		slog.Error("persisting status transition", "error", err, "job_id", job.ID, "to", to)
		return false
	}
	job.Status = to
	_ = c.cache.SetJobStatus(ctx, job.ID, to, statusTTL)
	return true
}

// cancelledAtBoundary checks the cancel flag between stages and, when
// raised, moves the job to cancelled.
func (c *Coordinator) cancelledAtBoundary(ctx context.Context, job *models.UploadJob) bool {
	flagged, err := c.cache.JobCancelled(ctx, job.ID)
	if err != nil {
		slog.Warn("reading cancel flag", "error", err, "job_id", job.ID)
		return false
	}
	if !flagged {
		return false
	}
	if !c.transition(ctx, job, models.JobStatusCancelled, store.WithError(CodeCancelled, "cancelled by user")) {
		return true
	}
	slog.Info("pipeline cancelled at stage boundary", "job_id", job.ID, "at", job.Status)
	return true
}

// fail records the failure with its stage and code. Failed jobs keep their
// checkpoint, so a resume picks up where this run left off. The write is
// guarded by the status this worker last observed: a row another writer
// already moved (or finished) is left alone.
func (c *Coordinator) fail(job *models.UploadJob, stage string, err error) {
	code := classify(err)
	if code == CodeInternal && stage == models.StageGenerating {
		code = CodeGenerationFailed
	}

	ctx := context.Background()
	slog.Error("pipeline stage failed", "job_id", job.ID, "stage", stage, "code", code, "error", err)
	uerr := c.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithStage(stage), store.WithError(code, err.Error()),
		store.WithExpectedStatus(job.Status))
	if errors.Is(uerr, store.ErrStatusConflict) {
		slog.Warn("failure write lost race", "job_id", job.ID, "stage", stage)
		return
	}
	if uerr != nil {
		slog.Error("persisting failure", "error", uerr, "job_id", job.ID)
	}
	_ = c.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, statusTTL)
}
