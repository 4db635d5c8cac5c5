package occurrence

import "strings"

// labelVocabulary maps every recognized label token to its canonical binary
// value. Tokens outside this set are invalid; the record carrying one is
// dropped during loading rather than retained as null.
var labelVocabulary = map[string]int{
	"1":        1,
	"0":        0,
	"presence": 1,
	"absence":  0,
	"present":  1,
	"absent":   0,
	"y":        1,
	"n":        0,
	"yes":      1,
	"no":       0,
}

// NormalizeLabel maps a raw label token to the canonical {0,1} encoding.
// ok is false for tokens outside the recognized vocabulary, including the
// empty string.
func NormalizeLabel(raw string) (label int, ok bool) {
	label, ok = labelVocabulary[strings.ToLower(strings.TrimSpace(raw))]
	return label, ok
}
