package validator

import (
	"strings"
	"testing"

	"github.com/valpere/listforge/internal/language"
)

const englishListing = `<html lang="en"><body><article>
<h1>Sunny Flat</h1>
<section id="overview"><p>This bright apartment has two bedrooms, a sunny balcony and a modern kitchen close to the city park.</p></section>
</article></body></html>`

const spanishListing = `<html lang="es"><body><article>
<h1>Piso Soleado</h1>
<section id="overview"><p>Este piso luminoso tiene dos dormitorios, una terraza soleada y una cocina moderna cerca del parque.</p></section>
</article></body></html>`

func TestCheck_EmptyHTML(t *testing.T) {
	v := New()

	r := v.Check("", language.English)
	if r.Checked {
		t.Error("expected Checked=false for empty html")
	}
	if r.Mismatch() {
		t.Error("expected no mismatch for empty html")
	}
}

func TestCheck_ShortText(t *testing.T) {
	v := New()

	r := v.Check("<h1>Hi</h1>", language.English) // Less than minValidationLength
	if r.Checked {
		t.Error("expected Checked=false for short text (below threshold)")
	}
}

func TestCheck_MarkupIsIgnored(t *testing.T) {
	v := New()

	// Tags and attributes alone carry no visible text.
	r := v.Check(`<html lang="en"><head><meta name="description" content="x"></head><body><br><hr></body></html>`, language.Spanish)
	if r.Checked {
		t.Errorf("expected markup-only html to be unchecked, got %+v", r)
	}
}

func TestCheck_EnglishAsEnglish(t *testing.T) {
	v := New()

	r := v.Check(englishListing, language.English)
	if !r.Checked || !r.Match {
		t.Errorf("expected a confirmed match, got %+v", r)
	}
	if r.Detected != "en" {
		t.Errorf("Detected = %q, want en", r.Detected)
	}
}

func TestCheck_SpanishAsSpanish(t *testing.T) {
	v := New()

	r := v.Check(spanishListing, language.Spanish)
	if !r.Checked || !r.Match {
		t.Errorf("expected a confirmed match, got %+v", r)
	}
}

func TestCheck_MismatchedLanguage(t *testing.T) {
	v := New()

	r := v.Check(englishListing, language.Portuguese)
	if !r.Mismatch() {
		t.Fatalf("expected mismatch, got %+v", r)
	}
	if !strings.Contains(r.String(), "expected pt but detected en") {
		t.Errorf("String() = %q", r.String())
	}
}

func TestCheck_UnsupportedTargetFallsBackToEnglish(t *testing.T) {
	v := New()

	r := v.Check(englishListing, "fr")
	if r.Expected != language.English {
		t.Errorf("Expected = %q, want en", r.Expected)
	}
	if r.Mismatch() {
		t.Errorf("expected English copy to match normalised target, got %+v", r)
	}
}

func TestCheckText_CaseInsensitiveTarget(t *testing.T) {
	v := New()

	text := "This is a longer piece of text that should be detected as English."
	r := v.CheckText(text, "EN")
	if !r.Match {
		t.Errorf("expected match for upper-case target, got %+v", r)
	}
}
