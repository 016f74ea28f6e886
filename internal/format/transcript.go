package format

import (
	"strings"
	"unicode/utf8"
)

// DecodeTranscript validates an uploaded meeting transcript and returns its
// text. Transcripts are plain UTF-8 text files.
func DecodeTranscript(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &FormatError{Cause: "transcript is not valid UTF-8 text"}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", &FormatError{Cause: "empty transcript"}
	}
	return text, nil
}
