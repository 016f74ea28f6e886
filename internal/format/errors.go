// Package format converts uploaded bytes to and from the pipeline's
// internal tabular and textual representations. Adapters are pure
// transforms: no I/O beyond the bytes they are handed, and malformed input
// surfaces as a FormatError with a human-readable cause rather than a raw
// parser failure.
package format

import "fmt"

// FormatError reports unreadable or unsupported input. Non-retryable;
// shown to users as "unsupported or corrupt file".
type FormatError struct {
	Cause string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Cause
}

func formatErrorf(msg string, args ...any) *FormatError {
	return &FormatError{Cause: fmt.Sprintf(msg, args...)}
}
