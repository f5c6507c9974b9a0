/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/property"
	"github.com/valpere/listforge/internal/report"
	"github.com/valpere/listforge/internal/service"
	"github.com/valpere/listforge/internal/transport/rest/handler"
)

const (
	resultsFile = "evaluation_results.json"
	summaryFile = "evaluation_summary.csv"
	reportFile  = "evaluation_report.html"
)

var (
	batchInputFile   string
	batchOutputDir   string
	batchConcurrency int
	batchNoCache     bool
)

// batchOutput mirrors the HTTP response for one property: the success body
// or the error body.
type batchOutput struct {
	RequestID         string                      `json:"request_id,omitempty"`
	HTML              string                      `json:"html,omitempty"`
	Evaluation        *evaluation.Record          `json:"evaluation,omitempty"`
	Retries           int                         `json:"retries"`
	FailedCriteriaLog []orchestrator.AttemptEntry `json:"failed_criteria_log"`
	Cached            bool                        `json:"cached"`
	DetectedLanguage  string                      `json:"detected_language,omitempty"`
	Error             string                      `json:"error,omitempty"`
	Message           string                      `json:"message,omitempty"`
}

type batchItem struct {
	Input  property.Description `json:"input"`
	Output batchOutput          `json:"output"`
}

func newBatchOutput(out *service.Outcome, err error) batchOutput {
	if err != nil {
		_, body := handler.DescribeError(err)
		log := orchestrator.FailureLog(err)
		return batchOutput{
			RequestID:         body.RequestID,
			Retries:           len(log),
			FailedCriteriaLog: log,
			Error:             body.Error,
			Message:           body.Message,
		}
	}

	res := out.Result
	o := batchOutput{
		RequestID:         out.RequestID,
		Retries:           res.AttemptCount,
		FailedCriteriaLog: res.Log,
		Cached:            out.Cached,
		DetectedLanguage:  out.DetectedLanguage,
	}
	if res.Accepted() {
		o.HTML = res.HTML
		o.Evaluation = res.Evaluation
	} else {
		o.Error = handler.KindQualityRejected
		o.Message = res.Reason
	}
	return o
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate and score listings for a file of properties",
	Long: `Run every property in a JSON or YAML list through the generator and
evaluator, then write:

  evaluation_results.json   input and full output per property
  evaluation_summary.csv    one row of scores per property
  evaluation_report.html    aggregate scores and a table of properties

Example:
  listforge batch -i evaluation/data_input.json -d evaluation/results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := readProperties(batchInputFile)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		st, err := buildStack(ctx, cfg, batchNoCache)
		if err != nil {
			return err
		}
		defer st.Close()

		start := time.Now()
		items := runBatch(ctx, st.svc, props, batchConcurrency)
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := writeResultsJSON(filepath.Join(batchOutputDir, resultsFile), items); err != nil {
			return err
		}
		if err := writeSummaryCSV(filepath.Join(batchOutputDir, summaryFile), items); err != nil {
			return err
		}
		if err := writeOutput(filepath.Join(batchOutputDir, reportFile), []byte(report.Page(reportRows(items)))); err != nil {
			return err
		}

		accepted := 0
		for _, it := range items {
			if it.Output.Error == "" {
				accepted++
			}
		}
		fmt.Printf("Processed %d properties in %s: %d accepted, %d not accepted\n",
			len(items), time.Since(start).Round(time.Millisecond), accepted, len(items)-accepted)
		fmt.Printf("Results written to %s\n", batchOutputDir)
		return nil
	},
}

// runBatch keeps input order in the returned items.
func runBatch(ctx context.Context, svc *service.ListingService, props []property.Description, concurrency int) []batchItem {
	if concurrency < 1 {
		concurrency = 1
	}
	items := make([]batchItem, len(props))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, d := range props {
		eg.Go(func() error {
			out, err := svc.Generate(egCtx, d)
			items[i] = batchItem{Input: d, Output: newBatchOutput(out, err)}
			if err != nil {
				logger.Warn("Property failed", zap.Int("index", i), zap.String("title", d.Title), zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()
	return items
}

func writeResultsJSON(path string, items []batchItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

var summaryHeader = []string{
	"title",
	"language",
	evaluation.StructureCompliance,
	evaluation.LanguageFluencySEO,
	evaluation.MultilingualAdaptability,
	evaluation.KeyTotalScore,
	evaluation.KeyMissingTags,
	"retries",
	"failed_criteria_log",
	"status",
}

func writeSummaryCSV(path string, items []batchItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, it := range items {
		if err := w.Write(summaryRow(it)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func summaryRow(it batchItem) []string {
	score := func(name string) string {
		if it.Output.Evaluation == nil {
			return ""
		}
		if v, ok := it.Output.Evaluation.Score(name); ok {
			return strconv.Itoa(v)
		}
		return ""
	}

	var total string
	if v := finalScore(it); v != nil {
		total = strconv.Itoa(*v)
	}

	var tags string
	if it.Output.Evaluation != nil {
		tags = strings.Join(it.Output.Evaluation.MissingOrInvalidTags, ", ")
	}

	return []string{
		it.Input.Title,
		it.Input.Lang().String(),
		score(evaluation.StructureCompliance),
		score(evaluation.LanguageFluencySEO),
		score(evaluation.MultilingualAdaptability),
		total,
		tags,
		strconv.Itoa(it.Output.Retries),
		formatAttemptLog(it.Output.FailedCriteriaLog),
		itemStatus(it),
	}
}

func itemStatus(it batchItem) string {
	if it.Output.Error != "" {
		return it.Output.Error
	}
	return "accepted"
}

// finalScore is the accepted score, or the last rejected attempt's score.
func finalScore(it batchItem) *int {
	if ev := it.Output.Evaluation; ev != nil {
		v := ev.TotalScore
		return &v
	}
	if n := len(it.Output.FailedCriteriaLog); n > 0 {
		v := it.Output.FailedCriteriaLog[n-1].TotalScore
		return &v
	}
	return nil
}

func reportRows(items []batchItem) []report.Row {
	rows := make([]report.Row, 0, len(items))
	for _, it := range items {
		row := report.Row{
			Title:    it.Input.Title,
			Language: it.Input.Lang().String(),
			Status:   itemStatus(it),
			Retries:  it.Output.Retries,
		}
		row.TotalScore = finalScore(it)
		if ev := it.Output.Evaluation; ev != nil {
			row.Criteria = ev.Criteria
			row.MissingTags = ev.MissingOrInvalidTags
		}
		rows = append(rows, row)
	}
	return rows
}

// formatAttemptLog renders entries as "attempt 1: a=5, b=6; attempt 2: ...".
func formatAttemptLog(log []orchestrator.AttemptEntry) string {
	parts := make([]string, 0, len(log))
	for _, e := range log {
		names := make([]string, 0, len(e.FailingCriteria))
		for name := range e.FailingCriteria {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, fmt.Sprintf("%s=%d", name, e.FailingCriteria[name]))
		}
		parts = append(parts, fmt.Sprintf("attempt %d: %s", e.Attempt, strings.Join(pairs, ", ")))
	}
	return strings.Join(parts, "; ")
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputFile, "input", "i", "", "JSON or YAML list of properties (required)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "out-dir", "d", "evaluation/results", "Directory for results and summary files")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 1, "Properties processed in parallel")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "Always generate, ignoring cached listings")

	batchCmd.MarkFlagRequired("input")
}
