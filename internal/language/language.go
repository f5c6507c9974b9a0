// Package language defines the listing languages the generator supports and
// the fallback rule for anything else.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Code is a supported listing language.
type Code string

const (
	English    Code = "en"
	Portuguese Code = "pt"
	Spanish    Code = "es"
)

// Default is used for every unrecognised input.
const Default = English

var tags = map[Code]language.Tag{
	English:    language.English,
	Portuguese: language.Portuguese,
	Spanish:    language.Spanish,
}

// Supported returns the recognised codes in a stable order.
func Supported() []Code {
	return []Code{English, Portuguese, Spanish}
}

// Normalize maps raw input to a supported Code. Regional forms such as
// "pt-BR" or "es_ES" resolve to their base language; anything else,
// including the empty string, resolves to Default. It never fails.
func Normalize(raw string) Code {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Default
	}
	if c := Code(s); c.IsSupported() {
		return c
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return Default
	}
	base, conf := tag.Base()
	if conf == language.No {
		return Default
	}
	if c := Code(base.String()); c.IsSupported() {
		return c
	}
	return Default
}

// IsSupported reports whether c is one of the recognised codes.
func (c Code) IsSupported() bool {
	_, ok := tags[c]
	return ok
}

// Name returns the English display name, e.g. "Portuguese". Unsupported
// codes report the name of Default.
func (c Code) Name() string {
	tag, ok := tags[c]
	if !ok {
		tag = tags[Default]
	}
	return display.English.Languages().Name(tag)
}

// Tag returns the x/text tag for c.
func (c Code) Tag() language.Tag {
	if tag, ok := tags[c]; ok {
		return tag
	}
	return tags[Default]
}

func (c Code) String() string {
	return string(c)
}

// UnmarshalText normalises while decoding, so JSON and YAML input never
// carry an unsupported code past the boundary.
func (c *Code) UnmarshalText(b []byte) error {
	*c = Normalize(string(b))
	return nil
}
