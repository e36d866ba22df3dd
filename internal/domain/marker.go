package domain

import "strings"

type Marker string

const (
	MarkerNone     Marker = ""
	MarkerTriangle Marker = "triangle"
	MarkerSquare   Marker = "square"
	MarkerCircle   Marker = "circle"
)

var glyphs = map[Marker]string{
	MarkerTriangle: "▶",
	MarkerSquare:   "■",
	MarkerCircle:   "●",
}

// Glyph is the display symbol for the marker. Unknown markers render as "?".
func (m Marker) Glyph() string {
	if m == MarkerNone {
		return ""
	}
	if g, ok := glyphs[m]; ok {
		return g
	}
	return "?"
}

func (m Marker) IsNone() bool {
	return m == MarkerNone
}

// Plural returns the capitalized plural label, e.g. "Circles".
func (m Marker) Plural() string {
	if m == MarkerNone {
		return ""
	}
	s := string(m)
	return strings.ToUpper(s[:1]) + s[1:] + "s"
}

type Vocabulary []Marker

func DefaultVocabulary() Vocabulary {
	return Vocabulary{MarkerTriangle, MarkerSquare, MarkerCircle}
}

func (v Vocabulary) Contains(m Marker) bool {
	for _, x := range v {
		if x == m {
			return true
		}
	}
	return false
}
