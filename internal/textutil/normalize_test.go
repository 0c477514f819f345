package textutil

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "   \t\n", ""},
		{"diacritics", "Pelíšky", "pelisky"},
		{"czech sentence", "Vesničko má středisková", "vesnicko ma strediskova"},
		{"punctuation collapses", "Star Wars: Epizoda IV - Nová naděje", "star wars epizoda iv nova nadeje"},
		{"trims edges", "  ...Amélie!!  ", "amelie"},
		{"digits kept", "2001: A Space Odyssey", "2001 a space odyssey"},
		{"compatibility forms", "ﬁve ½", "five 1 2"},
		{"only symbols", "!!! ---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Pelíšky",
		"ΟΔΟΣ Σπίτι",
		"Ｆｕｌｌｗｉｄｔｈ　Ｔｅｘｔ",
		"Ærø — Øresund",
		"İstanbul",
		"ᴬᴮ modifier",
		"mixed_snake-case.title",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Pelíšky", "pelisky", 1},
		{"disjoint", "apple banana", "dog frog", 0},
		{"partial", "the dark knight", "dark knight rises", 0.5},
		{"empty side", "", "anything", 0},
		{"duplicates ignored", "go go go", "go", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TitleSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
