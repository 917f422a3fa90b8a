package store

import (
	"strings"
	"unicode"
)

// TrigramSimilarity computes a normalized trigram similarity in [0,1] between
// two strings, pg_trgm style: inputs are lowercased, split on non-alphanumeric
// runs, and each word is padded with two leading and one trailing space before
// trigram extraction. The result is the Jaccard ratio of the two trigram sets.
//
// Registered as the trigram_sim SQL function on every connection.
func TrigramSimilarity(a, b string) float64 {
	ta := trigramSet(a)
	tb := trigramSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range splitWords(strings.ToLower(s)) {
		padded := "  " + word + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			set[string(runes[i:i+3])] = struct{}{}
		}
	}
	return set
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
