package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleRows() []Row {
	return []Row{
		{
			Title:      "Sunny Flat",
			Language:   "en",
			Status:     "accepted",
			Retries:    0,
			TotalScore: intPtr(9),
			Criteria:   map[string]int{"structure_compliance": 9, "language_fluency_seo": 8},
		},
		{
			Title:       "Casa | Lisboa",
			Language:    "pt",
			Status:      "quality_rejected",
			Retries:     3,
			TotalScore:  intPtr(5),
			Criteria:    map[string]int{"structure_compliance": 5, "language_fluency_seo": 6},
			MissingTags: []string{"<h1>", "<ul>"},
		},
		{
			Title:    "Piso",
			Language: "es",
			Status:   "malformed_evaluation",
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRows())

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Accepted)
	assert.InDelta(t, 7.0, s.AverageScore, 1e-9)
	assert.InDelta(t, 1.0, s.AverageRetries, 1e-9)
	assert.InDelta(t, 7.0, s.CriteriaMeans["structure_compliance"], 1e-9)
	assert.InDelta(t, 7.0, s.CriteriaMeans["language_fluency_seo"], 1e-9)
	assert.Equal(t, map[string]int{"accepted": 1, "quality_rejected": 1, "malformed_evaluation": 1}, s.StatusCounts)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageScore)
	assert.Zero(t, s.AverageRetries)
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleRows()))

	assert.Contains(t, md, "- Properties: 3")
	assert.Contains(t, md, "| Sunny Flat | en | accepted | 0 | 9 |  |")
	assert.Contains(t, md, `Casa \| Lisboa`)
	assert.Contains(t, md, "| Piso | es | malformed_evaluation | 0 | - |  |")
	assert.Contains(t, md, "| language_fluency_seo | 7.00 |")
}

func TestPage(t *testing.T) {
	page := Page(sampleRows())

	require.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "Sunny Flat")
}
