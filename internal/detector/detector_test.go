package detector

import (
	"testing"
)

func TestDetector_DetectCode(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
		{
			name:   "whitespace only",
			text:   "  \n\t ",
			wantOK: false,
		},
		{
			name:     "english listing",
			text:     "Bright two-bedroom flat with a sunny balcony, close to the park and the metro station.",
			wantCode: "en",
			wantOK:   true,
		},
		{
			name:     "portuguese listing",
			text:     "Apartamento luminoso com dois quartos e varanda soalheira, perto do parque e do metro.",
			wantCode: "pt",
			wantOK:   true,
		},
		{
			name:     "spanish listing",
			text:     "Piso luminoso de dos dormitorios con terraza soleada, cerca del parque y del metro.",
			wantCode: "es",
			wantOK:   true,
		},
		{
			name:     "french drift",
			text:     "Appartement lumineux de deux chambres avec un balcon ensoleillé, proche du parc.",
			wantCode: "fr",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := d.DetectCode(tt.text)
			if ok != tt.wantOK {
				t.Errorf("DetectCode(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
				return
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectCode(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestDetector_Detect(t *testing.T) {
	d := New()

	lang, ok := d.Detect("This spacious family home has a large garden and a double garage.")
	if !ok {
		t.Fatal("expected a detection")
	}
	if lang.String() != "English" {
		t.Errorf("Detect() = %v, want English", lang)
	}
}

func TestDetector_ShortText(t *testing.T) {
	d := New()

	// Short text may or may not be detected; it must not panic.
	_, _ = d.DetectCode("Hi")
}
