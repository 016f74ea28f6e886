package pipeline

import (
	"context"
	"errors"

	"docpipe/internal/ai"
	"docpipe/internal/clean"
	"docpipe/internal/format"
)

// Machine-readable failure codes recorded on jobs. Stable: clients branch
// on them to decide whether a resume is worth trying.
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeAITransient       = "AI_TRANSIENT"
	CodeAIAuth            = "AI_AUTH"
	CodeAIResponseInvalid = "AI_RESPONSE_INVALID"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL"
)

// Coordinator-level errors surfaced to the API layer.
var (
	ErrJobTerminal       = errors.New("job is in a terminal state")
	ErrNotResumable      = errors.New("only failed jobs can be resumed")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrUnsupportedKind   = errors.New("unsupported source kind")
)

// classify maps a stage error to its failure code.
func classify(err error) string {
	var fe *format.FormatError
	if errors.As(err, &fe) {
		return CodeUnsupportedFormat
	}
	var ce *clean.Error
	if errors.As(err, &ce) {
		return ce.Code
	}

	switch {
	case errors.Is(err, ai.ErrAuth):
		return CodeAIAuth
	case errors.Is(err, ai.ErrInvalidResponse):
		return CodeAIResponseInvalid
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case ai.Transient(err):
		return CodeAITransient
	}
	return CodeInternal
}
