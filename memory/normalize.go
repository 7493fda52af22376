package memory

import "strings"

// leadingFillers are stripped from the start of a food name.
var leadingFillers = map[string]bool{
	"a": true, "an": true, "the": true, "some": true,
	"of": true, "with": true, "made": true, "in": true,
}

// connectors are dropped when they appear between two other words.
var connectors = map[string]bool{
	"of": true, "with": true, "made": true, "in": true,
}

// NormalizeFoodName maps a display name to its density-library key.
//
// The name is lower-cased and split on whitespace. Leading filler words are dropped
// while more than one word remains, and connector words are dropped unless they are the
// last word. No stemming, accent folding or synonym handling is done: "egg" and "eggs"
// stay distinct keys. The function is idempotent.
func NormalizeFoodName(name string) string {
	words := strings.Fields(strings.ToLower(name))

	for len(words) > 1 && leadingFillers[words[0]] {
		words = words[1:]
	}

	out := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 && i < len(words)-1 && connectors[w] {
			continue
		}
		out = append(out, w)
	}

	return strings.Join(out, " ")
}

// NormalizePhrase maps a raw meal description to its phrase-cache key.
// Insert, lookup and removal must all go through this function.
func NormalizePhrase(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}
