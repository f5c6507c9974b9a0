package property

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/valpere/listforge/internal/language"
)

func intPtr(v int) *int { return &v }

func sunnyFlat() Description {
	return Description{
		Title:       "Sunny Flat",
		Location:    Location{City: "Lisbon"},
		Features:    Features{Bedrooms: intPtr(2)},
		ListingType: Sale,
		Language:    language.English,
	}
}

func TestDescription_Validate(t *testing.T) {
	require.NoError(t, sunnyFlat().Validate())

	tests := []struct {
		name   string
		mutate func(d *Description)
		field  string
	}{
		{"blank title", func(d *Description) { d.Title = "  " }, "title"},
		{"missing city", func(d *Description) { d.Location.City = "" }, "location.city"},
		{"bad listing type", func(d *Description) { d.ListingType = "lease" }, "listing_type"},
		{"negative price", func(d *Description) { p := -1.0; d.Price = &p }, "price"},
		{"negative bedrooms", func(d *Description) { d.Features.Bedrooms = intPtr(-2) }, "features.bedrooms"},
		{"negative area", func(d *Description) { a := -3.5; d.Features.AreaSQM = &a }, "features.area_sqm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sunnyFlat()
			tt.mutate(&d)
			err := d.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDescription_UnmarshalJSON_NormalisesLanguage(t *testing.T) {
	raw := `{"title":"Sunny Flat","location":{"city":"Porto","neighborhood":"Ribeira"},
		"features":{"bedrooms":2,"balcony":true,"area_sqm":75.5},
		"price":250000,"listing_type":"sale","language":"fr"}`

	var d Description
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, language.English, d.Language)
	require.NotNil(t, d.Location.Neighborhood)
	assert.Equal(t, "Ribeira", *d.Location.Neighborhood)
	require.NotNil(t, d.Features.AreaSQM)
	assert.InDelta(t, 75.5, *d.Features.AreaSQM, 0.0001)
	assert.Nil(t, d.Features.Parking)
}

func TestDescription_Lang_DefaultsWhenMissing(t *testing.T) {
	var d Description
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x"}`), &d))
	assert.Equal(t, language.English, d.Lang())
}

func TestDescription_UnmarshalYAML(t *testing.T) {
	raw := `
title: Casa com jardim
location:
  city: Braga
features:
  bedrooms: 3
  parking: true
listing_type: rent
language: pt-BR
`
	var d Description
	require.NoError(t, yaml.Unmarshal([]byte(raw), &d))

	assert.Equal(t, language.Portuguese, d.Language)
	assert.Equal(t, Rent, d.ListingType)
	require.NotNil(t, d.Features.Parking)
	assert.True(t, *d.Features.Parking)
}

func TestDescription_CanonicalJSON(t *testing.T) {
	d := sunnyFlat()
	d.Language = "" // omitted on input

	b, err := d.CanonicalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "en", decoded["language"])
	assert.Equal(t, "Sunny Flat", decoded["title"])
	assert.NotContains(t, decoded, "price")
}

func TestDescription_Fingerprint(t *testing.T) {
	a := sunnyFlat()
	b := sunnyFlat()

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	b.Language = language.Spanish
	fc, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
