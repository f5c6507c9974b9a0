package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/language"
	"github.com/valpere/listforge/internal/llm"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/prompt"
	"github.com/valpere/listforge/internal/property"
	"github.com/valpere/listforge/internal/service"
)

const testListing = `<!DOCTYPE html><html lang="en"><head><title>Sunny Flat</title></head><body><h1>Sunny Flat</h1></body></html>`

func acceptedItem() batchItem {
	return batchItem{
		Input: property.Description{Title: "Sunny Flat", Language: language.English},
		Output: batchOutput{
			RequestID: "req-1",
			HTML:      testListing,
			Evaluation: &evaluation.Record{
				Criteria: map[string]int{
					evaluation.StructureCompliance:      9,
					evaluation.LanguageFluencySEO:       8,
					evaluation.MultilingualAdaptability: 9,
				},
				TotalScore:           9,
				MissingOrInvalidTags: []string{"<ul>", "<meta>"},
			},
			Retries: 1,
			FailedCriteriaLog: []orchestrator.AttemptEntry{
				{Attempt: 1, TotalScore: 6, FailingCriteria: map[string]int{"structure_compliance": 5, "language_fluency_seo": 7}},
			},
		},
	}
}

func rejectedItem() batchItem {
	return batchItem{
		Input: property.Description{Title: "Casa", Language: language.Portuguese},
		Output: batchOutput{
			Retries: 2,
			FailedCriteriaLog: []orchestrator.AttemptEntry{
				{Attempt: 1, TotalScore: 5, FailingCriteria: map[string]int{"structure_compliance": 5}},
				{Attempt: 2, TotalScore: 6, FailingCriteria: map[string]int{"structure_compliance": 6}},
			},
			Error: "quality_rejected",
		},
	}
}

func TestNewBatchOutputError(t *testing.T) {
	err := &service.RequestError{
		RequestID: "req-9",
		Err:       &orchestrator.MalformedEvaluationError{Attempt: 1, Err: errors.New("not json")},
	}
	out := newBatchOutput(nil, err)

	assert.Equal(t, "req-9", out.RequestID)
	assert.Equal(t, "malformed_evaluation", out.Error)
	assert.NotNil(t, out.FailedCriteriaLog)
	assert.Empty(t, out.FailedCriteriaLog)
	assert.Nil(t, out.Evaluation)
}

func TestNewBatchOutputErrorKeepsEarlierAttempts(t *testing.T) {
	log := []orchestrator.AttemptEntry{{Attempt: 1, TotalScore: 4, FailingCriteria: map[string]int{"structure_compliance": 4}}}
	out := newBatchOutput(nil, &service.RequestError{
		RequestID: "req-4",
		Err:       &orchestrator.MalformedEvaluationError{Attempt: 2, Log: log, Err: errors.New("not json")},
	})

	assert.Equal(t, 1, out.Retries)
	assert.Equal(t, log, out.FailedCriteriaLog)
}

func TestNewBatchOutputRejected(t *testing.T) {
	out := newBatchOutput(&service.Outcome{
		RequestID: "req-2",
		Result: &orchestrator.Result{
			Status:       orchestrator.StatusRejected,
			AttemptCount: 3,
			Log:          []orchestrator.AttemptEntry{{Attempt: 1}, {Attempt: 2}, {Attempt: 3}},
			Reason:       "Generated content did not reach minimum score 8 after 3 attempts",
		},
	}, nil)

	assert.Equal(t, "quality_rejected", out.Error)
	assert.Equal(t, 3, out.Retries)
	assert.Len(t, out.FailedCriteriaLog, 3)
	assert.Empty(t, out.HTML)
	assert.Contains(t, out.Message, "minimum score 8")
}

func TestSummaryRow(t *testing.T) {
	row := summaryRow(acceptedItem())
	assert.Equal(t, []string{
		"Sunny Flat", "en", "9", "8", "9", "9", "<ul>, <meta>", "1",
		"attempt 1: language_fluency_seo=7, structure_compliance=5",
		"accepted",
	}, row)

	row = summaryRow(rejectedItem())
	assert.Equal(t, []string{
		"Casa", "pt", "", "", "", "6", "", "2",
		"attempt 1: structure_compliance=5; attempt 2: structure_compliance=6",
		"quality_rejected",
	}, row)
}

func TestWriteSummaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), summaryFile)
	require.NoError(t, writeSummaryCSV(path, []batchItem{acceptedItem(), rejectedItem()}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, summaryHeader, records[0])
	assert.Equal(t, "Sunny Flat", records[1][0])
	assert.Equal(t, "quality_rejected", records[2][len(records[2])-1])
}

func TestWriteResultsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), resultsFile)
	require.NoError(t, writeResultsJSON(path, []batchItem{acceptedItem()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Sunny Flat</h1>")

	var decoded []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Contains(t, decoded[0], "input")
	assert.Contains(t, decoded[0], "output")
}

func TestReportRows(t *testing.T) {
	rows := reportRows([]batchItem{acceptedItem(), rejectedItem()})
	require.Len(t, rows, 2)

	assert.Equal(t, "accepted", rows[0].Status)
	require.NotNil(t, rows[0].TotalScore)
	assert.Equal(t, 9, *rows[0].TotalScore)

	assert.Equal(t, "quality_rejected", rows[1].Status)
	require.NotNil(t, rows[1].TotalScore)
	assert.Equal(t, 6, *rows[1].TotalScore)
}

func TestRunBatchKeepsOrder(t *testing.T) {
	r, err := prompt.Load("")
	require.NoError(t, err)
	orch := orchestrator.New(
		llm.NewStatic(testListing),
		llm.NewStatic(`{"structure_compliance": 9, "total_score": 9}`),
		r, orchestrator.DefaultPolicy())
	svc := service.New(orch)

	lisbon := property.Location{City: "Lisbon"}
	props := []property.Description{
		{Title: "Sunny Flat", Location: lisbon, ListingType: property.Sale, Language: language.English},
		{Title: "  ", Location: lisbon, ListingType: property.Sale, Language: language.English},
		{Title: "Casa", Location: lisbon, ListingType: property.Rent, Language: language.Portuguese},
	}
	items := runBatch(context.Background(), svc, props, 2)

	require.Len(t, items, 3)
	assert.Equal(t, "Sunny Flat", items[0].Input.Title)
	assert.Empty(t, items[0].Output.Error)
	assert.Equal(t, "invalid_request", items[1].Output.Error)
	assert.Equal(t, "Casa", items[2].Input.Title)
	assert.Empty(t, items[2].Output.Error)
}

func TestReadProperties(t *testing.T) {
	dir := t.TempDir()

	one := filepath.Join(dir, "one.json")
	require.NoError(t, os.WriteFile(one, []byte(`{"title":"Sunny Flat","location":{"city":"Lisbon"},"listing_type":"sale","language":"en"}`), 0644))
	props, err := readProperties(one)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "Lisbon", props[0].Location.City)

	many := filepath.Join(dir, "many.yaml")
	require.NoError(t, os.WriteFile(many, []byte("- title: A\n  language: pt\n- title: B\n  language: es\n"), 0644))
	props, err = readProperties(many)
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, language.Spanish, props[1].Language)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))
	_, err = readProperties(empty)
	assert.Error(t, err)
}
