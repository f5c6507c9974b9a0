// Package property holds the structured description a listing is generated
// from.
package property

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/listforge/internal/language"
)

// ListingType is either a sale or a rental.
type ListingType string

const (
	Sale ListingType = "sale"
	Rent ListingType = "rent"
)

type Location struct {
	City         string  `json:"city" yaml:"city"`
	Neighborhood *string `json:"neighborhood,omitempty" yaml:"neighborhood,omitempty"`
}

type Features struct {
	Bedrooms  *int     `json:"bedrooms,omitempty" yaml:"bedrooms,omitempty"`
	Bathrooms *int     `json:"bathrooms,omitempty" yaml:"bathrooms,omitempty"`
	AreaSQM   *float64 `json:"area_sqm,omitempty" yaml:"area_sqm,omitempty"`
	Balcony   *bool    `json:"balcony,omitempty" yaml:"balcony,omitempty"`
	Parking   *bool    `json:"parking,omitempty" yaml:"parking,omitempty"`
	Elevator  *bool    `json:"elevator,omitempty" yaml:"elevator,omitempty"`
	Floor     *int     `json:"floor,omitempty" yaml:"floor,omitempty"`
	YearBuilt *int     `json:"year_built,omitempty" yaml:"year_built,omitempty"`
}

// Description is the input of one generation request. It is treated as
// immutable once decoded.
type Description struct {
	Title       string        `json:"title" yaml:"title"`
	Location    Location      `json:"location" yaml:"location"`
	Features    Features      `json:"features" yaml:"features"`
	Price       *float64      `json:"price,omitempty" yaml:"price,omitempty"`
	ListingType ListingType   `json:"listing_type" yaml:"listing_type"`
	Language    language.Code `json:"language" yaml:"language"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Lang returns the normalised language, defaulting when the field was
// omitted.
func (d Description) Lang() language.Code {
	return language.Normalize(string(d.Language))
}

// Validate checks the fields the generator cannot do without.
func (d Description) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(d.Location.City) == "" {
		return &ValidationError{Field: "location.city", Reason: "required"}
	}
	switch d.ListingType {
	case Sale, Rent:
	default:
		return &ValidationError{Field: "listing_type", Reason: fmt.Sprintf("must be %q or %q, got %q", Sale, Rent, d.ListingType)}
	}

	if d.Price != nil && *d.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	f := d.Features
	for _, c := range []struct {
		name string
		v    *int
	}{
		{"features.bedrooms", f.Bedrooms},
		{"features.bathrooms", f.Bathrooms},
		{"features.year_built", f.YearBuilt},
	} {
		if c.v != nil && *c.v < 0 {
			return &ValidationError{Field: c.name, Reason: "must not be negative"}
		}
	}
	if f.AreaSQM != nil && *f.AreaSQM < 0 {
		return &ValidationError{Field: "features.area_sqm", Reason: "must not be negative"}
	}
	return nil
}

// CanonicalJSON is the serialisation handed to the generator prompt. The
// language is always the normalised one.
func (d Description) CanonicalJSON() ([]byte, error) {
	d.Language = d.Lang()
	return json.Marshal(d)
}

// Fingerprint identifies a description for caching purposes.
func (d Description) Fingerprint() (string, error) {
	b, err := d.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(norm.NFC.String(string(b))))
	return hex.EncodeToString(sum[:]), nil
}
