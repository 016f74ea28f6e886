// Package models contains shared data models used across the docpipe codebase.
package models

import (
	"context"
	"errors"
	"time"
)

// Provider error sentinels. They live here, next to AIProvider, so vendor
// implementations can return them without importing the orchestrator.
var (
	// ErrRateLimited and ErrUnavailable are transient: the orchestrator
	// retries them with backoff. Everything else fails the attempt loop.
	ErrRateLimited = errors.New("ai provider rate limited")
	ErrUnavailable = errors.New("ai provider unavailable")

	ErrTimeout         = errors.New("ai inference timeout")
	ErrAuth            = errors.New("ai provider authentication failed")
	ErrInvalidResponse = errors.New("ai provider returned invalid response")
)

// Prompt is one request to the language-model service.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// AIProvider is the single synchronous capability the orchestrator needs
// from the external model service. Never call a vendor client directly —
// always inject this interface.
type AIProvider interface {
	// Complete sends the prompt and returns the raw model text.
	Complete(ctx context.Context, p Prompt) (string, error)
	// Name returns the provider identifier (e.g., "deepseek", "openai").
	Name() string
}

// TaskType selects the prompt template and response schema for an
// analysis call.
type TaskType string

const (
	TaskTrendSummary   TaskType = "trend-summary"
	TaskSlideOutline   TaskType = "slide-outline"
	TaskMeetingSummary TaskType = "meeting-summary"
)

// Trend is one metric movement the model identified in a dataset.
type Trend struct {
	Metric    string  `json:"metric"`
	Direction string  `json:"direction"` // up | down | flat
	Magnitude float64 `json:"magnitude"`
	Narrative string  `json:"narrative"`
}

// TrendSummary is the structured payload for TaskTrendSummary.
type TrendSummary struct {
	Trends []Trend `json:"trends"`
}

// OutlineSection is one planned slide in a slide-outline payload.
// Priority is implicit: earlier sections matter more.
type OutlineSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// SlideOutline is the structured payload for TaskSlideOutline.
type SlideOutline struct {
	Sections []OutlineSection `json:"sections"`
}

// ActionItem is one follow-up extracted from a meeting transcript.
// Owner may be empty; the generator tags such items "unassigned".
type ActionItem struct {
	Owner string `json:"owner"`
	Task  string `json:"task"`
	Due   string `json:"due"`
}

// MeetingSummary is the structured payload for TaskMeetingSummary.
type MeetingSummary struct {
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items"`
	KeyPoints   []string     `json:"key_points"`
}

// AnalysisPayload is the tagged variant returned by the orchestrator after
// schema validation. Exactly one of the pointers is set, matching Task.
type AnalysisPayload struct {
	Task    TaskType        `json:"task"`
	Trends  *TrendSummary   `json:"trends,omitempty"`
	Outline *SlideOutline   `json:"outline,omitempty"`
	Minutes *MeetingSummary `json:"minutes,omitempty"`
}

// AIResponse is one validated model response, keyed by the request
// fingerprint (template id + input + parameters). Rows are immutable: the
// first writer wins and every later identical request reads this record
// instead of calling the model again.
type AIResponse struct {
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	TemplateID  string    `db:"template_id" json:"template_id"`
	Task        TaskType  `db:"task"        json:"task"`
	Provider    string    `db:"provider"    json:"provider"`
	Response    string    `db:"response"    json:"response"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
}
