// Package validator checks that a generated listing is written in the
// requested language.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/listforge/internal/detector"
	"github.com/valpere/listforge/internal/language"
	"github.com/valpere/listforge/internal/postprocess"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Report is the outcome of a language check. Checked is false when the
// text was too short or ambiguous to judge.
type Report struct {
	Expected language.Code `json:"expected"`
	Detected string        `json:"detected,omitempty"`
	Checked  bool          `json:"checked"`
	Match    bool          `json:"match"`
}

// Mismatch reports whether the listing was judged to be in another language.
func (r Report) Mismatch() bool { return r.Checked && !r.Match }

func (r Report) String() string {
	switch {
	case !r.Checked:
		return fmt.Sprintf("language not checked (expected %s)", r.Expected)
	case r.Match:
		return fmt.Sprintf("language %s confirmed", r.Expected)
	default:
		return fmt.Sprintf("expected %s but detected %s", r.Expected, r.Detected)
	}
}

// Validator checks listing HTML against its target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator backed by the lingua-go language detector.
func New() *Validator {
	return &Validator{det: detector.New()}
}

// Check strips markup from html and compares the detected language of the
// visible text with lang.
func (v *Validator) Check(html string, lang language.Code) Report {
	return v.CheckText(postprocess.PlainText(html), lang)
}

// CheckText is Check for text that carries no markup.
func (v *Validator) CheckText(text string, lang language.Code) Report {
	r := Report{Expected: language.Normalize(string(lang))}

	text = strings.TrimSpace(text)
	// Detector is unreliable for very short texts; skip validation.
	if len([]rune(text)) < minValidationLength {
		return r
	}

	detected, ok := v.det.DetectCode(text)
	if !ok {
		// Ambiguous language; cannot validate.
		return r
	}

	r.Checked = true
	r.Detected = detected
	r.Match = strings.EqualFold(detected, r.Expected.String())
	return r
}
