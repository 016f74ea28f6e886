package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docpipe/internal/cache"
	"docpipe/internal/config"
	"docpipe/internal/store"
	"docpipe/pkg/models"
)

const aiResponseTTL = 24 * time.Hour

// Orchestrator is the only path to the model service. It owns prompt
// construction, the retry loop, schema validation, and the response cache:
// callers hand it domain objects and get validated payloads back.
type Orchestrator struct {
	provider models.AIProvider
	store    store.Store
	cache    cache.Cache

	policy         RetryPolicy
	callTimeout    time.Duration
	maxSampleRows  int
	maxPromptChars int
}

// NewOrchestrator creates an Orchestrator wired to the given provider and
// persistence layers.
func NewOrchestrator(provider models.AIProvider, st store.Store, ca cache.Cache, cfg config.AIConfig) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		store:    st,
		cache:    ca,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		callTimeout:    cfg.CallTimeout,
		maxSampleRows:  cfg.MaxSampleRows,
		maxPromptChars: cfg.MaxPromptChars,
	}
}

// AnalyzeTrends summarizes the notable metric movements in a cleaned dataset.
func (o *Orchestrator) AnalyzeTrends(ctx context.Context, ds *models.CleanedDataset) (*models.TrendSummary, error) {
	prompt, input := TrendPrompt(ds, o.maxSampleRows, o.maxPromptChars)
	payload, err := o.run(ctx, models.TaskTrendSummary, TemplateTrendSummary, prompt, input)
	if err != nil {
		return nil, err
	}
	return payload.Trends, nil
}

// OutlineSlides plans deck content for a slide template's brief and slots.
func (o *Orchestrator) OutlineSlides(ctx context.Context, tmpl *models.SlideTemplate) (*models.SlideOutline, error) {
	prompt, input := OutlinePrompt(tmpl, o.maxPromptChars)
	payload, err := o.run(ctx, models.TaskSlideOutline, TemplateSlideOutline, prompt, input)
	if err != nil {
		return nil, err
	}
	return payload.Outline, nil
}

// SummarizeMeeting extracts decisions, action items and key points from a
// normalized transcript.
func (o *Orchestrator) SummarizeMeeting(ctx context.Context, transcript string) (*models.MeetingSummary, error) {
	prompt, input := MinutesPrompt(transcript, o.maxPromptChars)
	payload, err := o.run(ctx, models.TaskMeetingSummary, TemplateMeetingSummary, prompt, input)
	if err != nil {
		return nil, err
	}
	return payload.Minutes, nil
}

// run resolves one logical request: cache, then store, then provider.
// A fingerprint that was ever answered is answered the same way forever.
func (o *Orchestrator) run(ctx context.Context, task models.TaskType, templateID string, prompt models.Prompt, input string) (*models.AnalysisPayload, error) {
	fp := Fingerprint(templateID, input, prompt)
	key := cache.AIResponseKey(fp)

	if val, found, err := o.cache.Get(ctx, key); err == nil && found {
		return ParseResponse(task, string(val))
	} else if err != nil {
		slog.Warn("ai response cache read failed", "error", err, "fingerprint", fp)
	}

	if rec, err := o.store.GetAIResponse(ctx, fp); err == nil {
		_ = o.cache.Set(ctx, key, []byte(rec.Response), aiResponseTTL)
		return ParseResponse(task, rec.Response)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("ai response lookup failed", "error", err, "fingerprint", fp)
	}

	raw, err := o.complete(ctx, task, prompt)
	if err != nil {
		return nil, err
	}

	if err := o.store.PutAIResponse(ctx, &models.AIResponse{
		Fingerprint: fp,
		TemplateID:  templateID,
		Task:        task,
		Provider:    o.provider.Name(),
		Response:    raw,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		slog.Warn("ai response persist failed", "error", err, "fingerprint", fp)
	}
	_ = o.cache.Set(ctx, key, []byte(raw), aiResponseTTL)

	return ParseResponse(task, raw)
}

// complete runs the bounded attempt loop. A schema-invalid response gets
// exactly one corrective follow-up; a second invalid response fails the
// request without further retries.
func (o *Orchestrator) complete(ctx context.Context, task models.TaskType, prompt models.Prompt) (string, error) {
	var raw string
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		out, err := o.provider.Complete(callCtx, prompt)
		if err != nil {
			return err
		}

		if verr := ValidateResponse(task, out); verr != nil {
			slog.Info("model response failed validation, sending corrective prompt",
				"task", task, "reason", verr.Error())
			fixed := CorrectivePrompt(prompt, out, verr.Error())
			out, err = o.provider.Complete(callCtx, fixed)
			if err != nil {
				return err
			}
			if verr := ValidateResponse(task, out); verr != nil {
				return verr
			}
		}

		raw = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}
