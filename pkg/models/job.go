package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies the type of artifact a user uploaded.
type SourceKind string

const (
	SourceSpreadsheet   SourceKind = "spreadsheet"
	SourceSlideTemplate SourceKind = "slide-template"
	SourceTranscript    SourceKind = "transcript"
)

// ValidSourceKind reports whether k is a kind the pipeline accepts.
func ValidSourceKind(k SourceKind) bool {
	switch k {
	case SourceSpreadsheet, SourceSlideTemplate, SourceTranscript:
		return true
	}
	return false
}

// Job statuses. The pipeline moves strictly forward through
// uploaded → cleaning → cleaned → analyzing → analyzed → generating → completed.
// failed and cancelled are reachable per the coordinator's transition rules.
const (
	JobStatusUploaded   = "uploaded"
	JobStatusCleaning   = "cleaning"
	JobStatusCleaned    = "cleaned"
	JobStatusAnalyzing  = "analyzing"
	JobStatusAnalyzed   = "analyzed"
	JobStatusGenerating = "generating"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Pipeline stages, recorded on the job when it fails so callers see where.
const (
	StageCleaning   = "cleaning"
	StageAnalyzing  = "analyzing"
	StageGenerating = "generating"
)

// TerminalStatus reports whether no further transition is permitted.
// A failed job is terminal except through an explicit resume.
func TerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Progress maps a job status to a rough completion percentage for polling
// clients. Values are monotonic along the happy path.
func Progress(status string) int {
	switch status {
	case JobStatusUploaded:
		return 5
	case JobStatusCleaning:
		return 15
	case JobStatusCleaned:
		return 35
	case JobStatusAnalyzing:
		return 45
	case JobStatusAnalyzed:
		return 70
	case JobStatusGenerating:
		return 80
	case JobStatusCompleted:
		return 100
	}
	return 0
}

// UploadJob tracks one user-submitted artifact through the pipeline.
// Only the coordinator mutates status; terminal states are immutable.
// CleanedRef is the durable checkpoint that lets a failed job resume
// without re-running the cleaning stage.
type UploadJob struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Kind         SourceKind `db:"kind"          json:"kind"`
	SourceRef    string     `db:"source_ref"    json:"source_ref"`
	SourceName   string     `db:"source_name"   json:"source_name"`
	Status       string     `db:"status"        json:"status"`
	Stage        *string    `db:"stage"         json:"stage,omitempty"`
	ErrorCode    *string    `db:"error_code"    json:"error_code,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CleanedRef   *string    `db:"cleaned_ref"   json:"-"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
