// Package detector identifies the language of listing copy.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Languages is the candidate set. It covers the supported listing languages
// and the neighbours a model most often drifts into.
var Languages = []lingua.Language{
	lingua.English,
	lingua.Portuguese,
	lingua.Spanish,
	lingua.French,
	lingua.Italian,
	lingua.German,
	lingua.Catalan,
}

// Detector wraps a lingua detector. Building one loads language models, so
// share the instance; it is safe for concurrent use.
type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(Languages...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectCode returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectCode(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
