package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"docpipe/pkg/models"
)

// JSON Schemas the raw model output must satisfy before anything downstream
// touches it. Compiled once at startup.

const trendSchema = `{
	"type": "object",
	"required": ["trends"],
	"additionalProperties": false,
	"properties": {
		"trends": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["metric", "direction", "magnitude", "narrative"],
				"additionalProperties": false,
				"properties": {
					"metric": {"type": "string", "minLength": 1},
					"direction": {"enum": ["up", "down", "flat"]},
					"magnitude": {"type": "number"},
					"narrative": {"type": "string"}
				}
			}
		}
	}
}`

const outlineSchema = `{
	"type": "object",
	"required": ["sections"],
	"additionalProperties": false,
	"properties": {
		"sections": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title", "bullets"],
				"additionalProperties": false,
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"bullets": {
						"type": "array",
						"maxItems": 5,
						"items": {"type": "string"}
					}
				}
			}
		}
	}
}`

const minutesSchema = `{
	"type": "object",
	"required": ["decisions", "action_items", "key_points"],
	"additionalProperties": false,
	"properties": {
		"decisions": {"type": "array", "items": {"type": "string"}},
		"action_items": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["owner", "task", "due"],
				"additionalProperties": false,
				"properties": {
					"owner": {"type": "string"},
					"task": {"type": "string", "minLength": 1},
					"due": {"type": "string"}
				}
			}
		},
		"key_points": {"type": "array", "items": {"type": "string"}}
	}
}`

var schemas = map[models.TaskType]*gojsonschema.Schema{
	models.TaskTrendSummary:   mustSchema(trendSchema),
	models.TaskSlideOutline:   mustSchema(outlineSchema),
	models.TaskMeetingSummary: mustSchema(minutesSchema),
}

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid response schema: %v", err))
	}
	return s
}

// stripFences removes a Markdown code fence wrapping the output. Models
// often reply with ```json ... ``` even when told not to; the JSON inside
// is still usable, so it should not cost a corrective retry.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ValidateResponse checks the raw model output against the task's schema.
// A wrapping code fence is stripped first. Returns ErrInvalidResponse
// (wrapped with the first violations) on any defect, including non-JSON
// output.
func ValidateResponse(task models.TaskType, raw string) error {
	schema, ok := schemas[task]
	if !ok {
		return fmt.Errorf("no schema for task %q", task)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(stripFences(raw)))
	if err != nil {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidResponse)
	}
	if !result.Valid() {
		var reasons []string
		for i, desc := range result.Errors() {
			if i == 3 {
				reasons = append(reasons, "...")
				break
			}
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(reasons, "; "))
	}
	return nil
}

// ParseResponse unmarshals a schema-valid response into the tagged payload,
// stripping a wrapping code fence the same way ValidateResponse does.
func ParseResponse(task models.TaskType, raw string) (*models.AnalysisPayload, error) {
	raw = stripFences(raw)
	payload := &models.AnalysisPayload{Task: task}
	switch task {
	case models.TaskTrendSummary:
		var v models.TrendSummary
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		payload.Trends = &v
	case models.TaskSlideOutline:
		var v models.SlideOutline
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		payload.Outline = &v
	case models.TaskMeetingSummary:
		var v models.MeetingSummary
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		payload.Minutes = &v
	default:
		return nil, fmt.Errorf("unknown task %q", task)
	}
	return payload, nil
}
