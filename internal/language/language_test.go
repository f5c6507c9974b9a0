package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Code
	}{
		{name: "english", input: "en", want: English},
		{name: "portuguese", input: "pt", want: Portuguese},
		{name: "spanish", input: "es", want: Spanish},
		{name: "upper case", input: "PT", want: Portuguese},
		{name: "whitespace", input: "  es ", want: Spanish},
		{name: "regional hyphen", input: "pt-BR", want: Portuguese},
		{name: "regional underscore", input: "es_ES", want: Spanish},
		{name: "french falls back", input: "fr", want: English},
		{name: "empty falls back", input: "", want: English},
		{name: "garbage falls back", input: "not a language", want: English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCode_Name(t *testing.T) {
	tests := map[Code]string{
		English:    "English",
		Portuguese: "Portuguese",
		Spanish:    "Spanish",
		Code("fr"): "English",
	}
	for code, want := range tests {
		if got := code.Name(); got != want {
			t.Errorf("%q.Name() = %q, want %q", code, got, want)
		}
	}
}

func TestSupported(t *testing.T) {
	codes := Supported()
	if len(codes) != 3 {
		t.Fatalf("expected 3 supported codes, got %d", len(codes))
	}
	for _, c := range codes {
		if !c.IsSupported() {
			t.Errorf("%q should be supported", c)
		}
	}
}

func TestCode_UnmarshalText(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("fr")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != English {
		t.Errorf("expected %q, got %q", English, c)
	}

	if err := c.UnmarshalText([]byte("es")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != Spanish {
		t.Errorf("expected %q, got %q", Spanish, c)
	}
}
