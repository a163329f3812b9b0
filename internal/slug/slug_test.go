package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Tamaulipas", "tamaulipas"},
		{"  Nuevo   Leon  ", "nuevo-leon"},
		{"San Luis Potosi", "san-luis-potosi"},
		{"Houston, TX", "houston-tx"},
		{"Ciudad Victoria", "ciudad-victoria"},
		{"  $$$  ", ""},
		{"", ""},
		{"Piedras Negras 2024", "piedras-negras-2024"},
		{"a - b", "a---b"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.label), "Normalize(%q)", tc.label)
	}
}

func TestCorrectKnownTypo(t *testing.T) {
	assert.Equal(t, "Tamaulipas", CorrectKnownTypo("Taumalipas"))
	assert.Equal(t, "Tamaulipas", CorrectKnownTypo("  Taumalipas  "))
	assert.Equal(t, "Coahuila", CorrectKnownTypo("Coahulia"))
	// unknown labels pass through untouched
	assert.Equal(t, "Tamaulipas", CorrectKnownTypo("Tamaulipas"))
	assert.Equal(t, "Veracruz", CorrectKnownTypo("Veracruz"))
	assert.Equal(t, "", CorrectKnownTypo(""))
}

func TestNormalizeAfterCorrection(t *testing.T) {
	// the display fix flows into the key
	assert.Equal(t, "tamaulipas", Normalize(CorrectKnownTypo("Taumalipas")))
}
