package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"docpipe/pkg/models"
)

// Template IDs version the prompt text. Bumping a version changes every
// request fingerprint, so cached responses from the old wording are never
// served against the new one.
const (
	TemplateTrendSummary   = "trend-summary@v1"
	TemplateSlideOutline   = "slide-outline@v1"
	TemplateMeetingSummary = "meeting-summary@v1"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.0
)

const systemTrend = `You are a data analyst. You respond with a single JSON object and nothing else:
no prose, no markdown fences. The object has one key "trends", an array of
objects with keys "metric" (string), "direction" ("up", "down" or "flat"),
"magnitude" (number) and "narrative" (string, one sentence).`

const systemOutline = `You are a presentation writer. You respond with a single JSON object and
nothing else: no prose, no markdown fences. The object has one key
"sections", an array of objects with keys "title" (string) and "bullets"
(array of strings, at most 5 per section). Order sections from most to
least important.`

const systemMinutes = `You are a meeting secretary. You respond with a single JSON object and
nothing else: no prose, no markdown fences. The object has keys "decisions"
(array of strings), "action_items" (array of objects with keys "owner",
"task", "due", all strings, empty string when unknown) and "key_points"
(array of strings).`

// TrendPrompt builds the trend-summary request for a cleaned dataset. The
// returned input string is the canonical request body used for
// fingerprinting: same dataset, same input, same fingerprint.
func TrendPrompt(ds *models.CleanedDataset, maxSampleRows, maxPromptChars int) (models.Prompt, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset %q, %d rows.\n\nColumns:\n", ds.Source, ds.RowCount)
	for _, col := range ds.Columns {
		report := ds.Report.Columns[col.Name]
		fmt.Fprintf(&b, "- %s (%s)", col.Name, col.Type)
		if len(report.OutlierIdx) > 0 {
			fmt.Fprintf(&b, ", %d flagged outliers", len(report.OutlierIdx))
		}
		b.WriteString("\n")
	}

	rows := ds.RowCount
	if rows > maxSampleRows {
		rows = maxSampleRows
	}
	b.WriteString("\nSample rows (CSV):\n")
	for _, col := range ds.Columns {
		b.WriteString(col.Name)
		b.WriteString(",")
	}
	b.WriteString("\n")
	for r := 0; r < rows; r++ {
		for _, col := range ds.Columns {
			if r < len(col.Cells) {
				b.WriteString(col.Cells[r])
			}
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nIdentify the notable trends in this dataset.")

	input := truncate(b.String(), maxPromptChars)
	return models.Prompt{
		System:      systemTrend,
		User:        input,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}, input
}

// OutlinePrompt builds the slide-outline request from a template's brief
// and slot list.
func OutlinePrompt(tmpl *models.SlideTemplate, maxPromptChars int) (models.Prompt, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Template %q with %d slots:\n", tmpl.Name, len(tmpl.Slots))
	for _, slot := range tmpl.Slots {
		fmt.Fprintf(&b, "- %s (%s)\n", slot.Name, slot.Kind)
	}
	fmt.Fprintf(&b, "\nBrief:\n%s\n\nPlan one section per slot, in slot order.", tmpl.Brief)

	input := truncate(b.String(), maxPromptChars)
	return models.Prompt{
		System:      systemOutline,
		User:        input,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}, input
}

// MinutesPrompt builds the meeting-summary request from a normalized
// transcript.
func MinutesPrompt(transcript string, maxPromptChars int) (models.Prompt, string) {
	input := truncate("Transcript:\n"+transcript+"\n\nExtract the decisions, action items and key points.", maxPromptChars)
	return models.Prompt{
		System:      systemMinutes,
		User:        input,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}, input
}

// CorrectivePrompt asks the model to fix a response that failed schema
// validation. Used at most once per request before giving up.
func CorrectivePrompt(orig models.Prompt, raw string, reason string) models.Prompt {
	var b strings.Builder
	b.WriteString(orig.User)
	b.WriteString("\n\nYour previous response was rejected: ")
	b.WriteString(reason)
	b.WriteString("\nPrevious response:\n")
	b.WriteString(truncate(raw, 2000))
	b.WriteString("\nRespond again with only the JSON object described above.")

	fixed := orig
	fixed.User = b.String()
	return fixed
}

// Fingerprint identifies one logical request: template version, canonical
// input, and the sampling parameters. Identical fingerprints must never
// trigger a second provider call.
func Fingerprint(templateID, input string, p models.Prompt) string {
	params, _ := json.Marshal(map[string]any{
		"max_tokens":  p.MaxTokens,
		"temperature": p.Temperature,
	})
	h := sha256.New()
	h.Write([]byte(templateID))
	h.Write([]byte{0x1f})
	h.Write([]byte(input))
	h.Write([]byte{0x1f})
	h.Write(params)
	return hex.EncodeToString(h.Sum(nil))
}

// truncate cuts s to maxChars bytes without splitting UTF-8 runes.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	for maxChars > 0 && !utf8.RuneStart(s[maxChars]) {
		maxChars--
	}
	return s[:maxChars]
}
