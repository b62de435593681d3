// Package inventory holds the pure matching and allocation rules used when an
// approver decides how a request's line items are fulfilled.
package inventory

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchThreshold is the minimum similarity for a name-only candidate to be surfaced
const MatchThreshold = 0.5

// ExactMatchScore is assigned to candidates bound by catalog id
const ExactMatchScore = 1.0

// Tokenize normalises a nomenclature into a set of comparable tokens.
// Single-character tokens are dropped.
func Tokenize(s string) map[string]struct{} {
	// Casers carry state, so one per call
	s = cases.Fold().String(norm.NFKC.String(s))

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}

// Similarity returns the Dice coefficient of the two names' token sets, in [0,1]
func Similarity(requested, candidate string) float64 {
	a := Tokenize(requested)
	b := Tokenize(candidate)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(a)+len(b))
}
