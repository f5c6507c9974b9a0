// Package report renders a batch evaluation run as a Markdown summary and
// its HTML rendition.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Row is one property of a batch run.
type Row struct {
	Title       string
	Language    string
	Status      string
	Retries     int
	TotalScore  *int
	Criteria    map[string]int
	MissingTags []string
}

// Accepted reports whether the row produced a listing.
func (r Row) Accepted() bool { return r.Status == "accepted" }

// Summary holds the aggregates shown at the top of the report.
type Summary struct {
	Total          int
	Accepted       int
	AverageScore   float64
	AverageRetries float64
	CriteriaMeans  map[string]float64
	StatusCounts   map[string]int
}

// Summarize averages scores over the rows that carry an evaluation.
func Summarize(rows []Row) Summary {
	s := Summary{
		Total:         len(rows),
		CriteriaMeans: map[string]float64{},
		StatusCounts:  map[string]int{},
	}
	var scored, retries int
	var scoreSum float64
	critSum := map[string]int{}
	critN := map[string]int{}

	for _, r := range rows {
		s.StatusCounts[r.Status]++
		if r.Accepted() {
			s.Accepted++
		}
		retries += r.Retries
		if r.TotalScore != nil {
			scored++
			scoreSum += float64(*r.TotalScore)
		}
		for name, v := range r.Criteria {
			critSum[name] += v
			critN[name]++
		}
	}
	if scored > 0 {
		s.AverageScore = scoreSum / float64(scored)
	}
	if len(rows) > 0 {
		s.AverageRetries = float64(retries) / float64(len(rows))
	}
	for name, sum := range critSum {
		s.CriteriaMeans[name] = float64(sum) / float64(critN[name])
	}
	return s
}

// Markdown renders the summary and one table row per property.
func Markdown(rows []Row) []byte {
	s := Summarize(rows)
	var b bytes.Buffer

	b.WriteString("# Evaluation summary\n\n")
	fmt.Fprintf(&b, "- Properties: %d\n", s.Total)
	fmt.Fprintf(&b, "- Accepted: %d\n", s.Accepted)
	fmt.Fprintf(&b, "- Average total score: %.2f\n", s.AverageScore)
	fmt.Fprintf(&b, "- Average retries: %.2f\n", s.AverageRetries)
	for _, st := range sortedKeys(s.StatusCounts) {
		fmt.Fprintf(&b, "- Status `%s`: %d\n", st, s.StatusCounts[st])
	}

	criteria := sortedKeys(s.CriteriaMeans)
	if len(criteria) > 0 {
		b.WriteString("\n## Criteria averages\n\n| criterion | mean |\n|---|---|\n")
		for _, name := range criteria {
			fmt.Fprintf(&b, "| %s | %.2f |\n", name, s.CriteriaMeans[name])
		}
	}

	b.WriteString("\n## Properties\n\n| title | language | status | retries | total score | missing or invalid tags |\n|---|---|---|---|---|---|\n")
	for _, r := range rows {
		score := "-"
		if r.TotalScore != nil {
			score = fmt.Sprintf("%d", *r.TotalScore)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			cell(r.Title), r.Language, r.Status, r.Retries, score, cell(strings.Join(r.MissingTags, ", ")))
	}
	return b.Bytes()
}

// ToHTML renders Markdown as an HTML fragment.
func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Attributes)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// Page wraps the rendered report in a standalone HTML document.
func Page(rows []Row) string {
	return "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Evaluation summary</title></head>\n<body>\n" +
		ToHTML(Markdown(rows)) +
		"</body>\n</html>\n"
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "<", "&lt;", ">", "&gt;")

func cell(s string) string {
	return cellReplacer.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
