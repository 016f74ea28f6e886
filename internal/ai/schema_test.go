package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpipe/pkg/models"
)

func TestValidateResponse_Trend(t *testing.T) {
	valid := `{"trends":[{"metric":"revenue","direction":"up","magnitude":4.2,"narrative":"ok"}]}`
	assert.NoError(t, ValidateResponse(models.TaskTrendSummary, valid))

	cases := map[string]string{
		"not json":             `trends: up`,
		"missing key":          `{}`,
		"bad direction":        `{"trends":[{"metric":"m","direction":"sideways","magnitude":1,"narrative":"x"}]}`,
		"extra property":       `{"trends":[],"model":"gpt"}`,
		"magnitude not number": `{"trends":[{"metric":"m","direction":"up","magnitude":"big","narrative":"x"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateResponse(models.TaskTrendSummary, raw), ErrInvalidResponse)
		})
	}
}

func TestValidateResponse_StripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"trends\":[{\"metric\":\"revenue\",\"direction\":\"up\",\"magnitude\":4.2,\"narrative\":\"ok\"}]}\n```"
	assert.NoError(t, ValidateResponse(models.TaskTrendSummary, fenced),
		"fenced but valid JSON must not cost a corrective retry")

	bare := "```\n{\"trends\":[]}\n```"
	assert.NoError(t, ValidateResponse(models.TaskTrendSummary, bare))

	assert.ErrorIs(t, ValidateResponse(models.TaskTrendSummary, "```json\nnot json\n```"),
		ErrInvalidResponse)
}

func TestParseResponse_StripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"trends\":[{\"metric\":\"units\",\"direction\":\"down\",\"magnitude\":3,\"narrative\":\"Units slipped.\"}]}\n```"
	payload, err := ParseResponse(models.TaskTrendSummary, fenced)
	require.NoError(t, err)
	require.NotNil(t, payload.Trends)
	require.Len(t, payload.Trends.Trends, 1)
	assert.Equal(t, "units", payload.Trends.Trends[0].Metric)
}

func TestValidateResponse_Outline(t *testing.T) {
	valid := `{"sections":[{"title":"Intro","bullets":["a","b"]}]}`
	assert.NoError(t, ValidateResponse(models.TaskSlideOutline, valid))

	assert.ErrorIs(t, ValidateResponse(models.TaskSlideOutline, `{"sections":[]}`), ErrInvalidResponse,
		"an outline needs at least one section")
	tooMany := `{"sections":[{"title":"t","bullets":["1","2","3","4","5","6"]}]}`
	assert.ErrorIs(t, ValidateResponse(models.TaskSlideOutline, tooMany), ErrInvalidResponse)
}

func TestValidateResponse_Minutes(t *testing.T) {
	valid := `{"decisions":["d"],"action_items":[{"owner":"","task":"t","due":""}],"key_points":[]}`
	assert.NoError(t, ValidateResponse(models.TaskMeetingSummary, valid))

	noTask := `{"decisions":[],"action_items":[{"owner":"a","due":""}],"key_points":[]}`
	assert.ErrorIs(t, ValidateResponse(models.TaskMeetingSummary, noTask), ErrInvalidResponse)
}

func TestParseResponse_TaggedVariant(t *testing.T) {
	payload, err := ParseResponse(models.TaskMeetingSummary,
		`{"decisions":["ship"],"action_items":[],"key_points":["k"]}`)
	require.NoError(t, err)

	assert.Equal(t, models.TaskMeetingSummary, payload.Task)
	require.NotNil(t, payload.Minutes)
	assert.Nil(t, payload.Trends)
	assert.Nil(t, payload.Outline)
	assert.Equal(t, []string{"ship"}, payload.Minutes.Decisions)
}

func TestTruncate_RespectsRuneBoundaries(t *testing.T) {
	s := "héllo wörld"
	cut := truncate(s, 3)
	assert.LessOrEqual(t, len(cut), 3)
	assert.True(t, len(cut) == 0 || cut[len(cut)-1] != 0xc3, "never ends mid-rune")

	assert.Equal(t, s, truncate(s, 100))
	assert.Equal(t, s, truncate(s, 0), "zero means unlimited")
}
