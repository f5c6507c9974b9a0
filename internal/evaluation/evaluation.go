// Package evaluation decodes the evaluator model's rubric scores.
//
// Parsing is lenient about formatting (whitespace, code fences) and strict
// about content: the payload must be a JSON object, total_score is required,
// and every score must be an integer. Anything else is a MalformedError.
package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/valpere/listforge/internal/postprocess"
)

const (
	KeyTotalScore  = "total_score"
	KeyMissingTags = "missing_or_invalid_tags"
)

// Well-known rubric criteria. The evaluator may add others.
const (
	StructureCompliance      = "structure_compliance"
	LanguageFluencySEO       = "language_fluency_seo"
	MultilingualAdaptability = "multilingual_adaptability"
)

// ErrMalformed matches every MalformedError.
var ErrMalformed = errors.New("malformed evaluation")

// MalformedError describes why evaluator output was rejected.
type MalformedError struct {
	Reason string
	Raw    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMalformed, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Record is one evaluation. It is built by Parse and only read afterwards.
type Record struct {
	Criteria             map[string]int
	TotalScore           int
	MissingOrInvalidTags []string
}

// Score returns the named criterion, or total_score for KeyTotalScore.
func (r Record) Score(name string) (int, bool) {
	if name == KeyTotalScore {
		return r.TotalScore, true
	}
	v, ok := r.Criteria[name]
	return v, ok
}

// Names returns the criterion names in sorted order, without total_score.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Criteria))
	for k := range r.Criteria {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FailingCriteria returns the criteria scoring below min. total_score is
// never included.
func (r Record) FailingCriteria(min int) map[string]int {
	failing := make(map[string]int)
	for name, score := range r.Criteria {
		if score < min {
			failing[name] = score
		}
	}
	return failing
}

// MarshalJSON writes the flat mapping the evaluator produced.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Criteria)+2)
	for k, v := range r.Criteria {
		m[k] = v
	}
	m[KeyTotalScore] = r.TotalScore
	if r.MissingOrInvalidTags != nil {
		m[KeyMissingTags] = r.MissingOrInvalidTags
	}
	return json.Marshal(m)
}

// UnmarshalJSON applies the same rules as Parse.
func (r *Record) UnmarshalJSON(b []byte) error {
	rec, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// Parse decodes raw evaluator output.
func Parse(raw string) (Record, error) {
	malformed := func(format string, args ...any) (Record, error) {
		return Record{}, &MalformedError{Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	body := postprocess.StripFences(raw)
	if body == "" {
		return malformed("empty output")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return malformed("not valid JSON: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return malformed("trailing data after JSON value")
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return malformed("expected a JSON object, got %s", kind(payload))
	}

	rawTotal, ok := obj[KeyTotalScore]
	if !ok {
		return malformed("missing %s", KeyTotalScore)
	}
	total, err := toInt(rawTotal)
	if err != nil {
		return malformed("%s: %v", KeyTotalScore, err)
	}
	if total < 0 {
		return malformed("%s must not be negative, got %d", KeyTotalScore, total)
	}

	rec := Record{
		Criteria:   make(map[string]int, len(obj)),
		TotalScore: total,
	}

	for key, value := range obj {
		switch key {
		case KeyTotalScore:
			continue
		case KeyMissingTags:
			tags, err := toStrings(value)
			if err != nil {
				return malformed("%s: %v", KeyMissingTags, err)
			}
			rec.MissingOrInvalidTags = tags
		default:
			score, err := toInt(value)
			if err != nil {
				return malformed("criterion %q: %v", key, err)
			}
			rec.Criteria[key] = score
		}
	}

	return rec, nil
}

// toInt accepts JSON integers, integral floats and numeric strings.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		return numberToInt(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, errors.New("empty string is not a number")
		}
		return numberToInt(s)
	default:
		return 0, fmt.Errorf("expected a number, got %s", kind(v))
	}
}

func numberToInt(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return int(f), nil
}

func toStrings(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %s", kind(v))
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a string, got %s", i, kind(item))
		}
		out = append(out, s)
	}
	return out, nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// compact renders raw evaluator output on one line for logs.
func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	return buf.String()
}

// Excerpt returns a short single-line form of raw output for diagnostics.
func Excerpt(raw string, max int) string {
	s := compact(postprocess.StripFences(raw))
	if max > 0 && len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "…"
	}
	return s
}
