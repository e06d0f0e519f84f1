package scheme

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyStateThreshold is the minimum Jaro-Winkler score for a misspelled
// state name to be accepted when no phonetic candidate matches.
const fuzzyStateThreshold = 0.88

// states lists every Indian state and union territory the scheme catalogue
// covers, in canonical spelling.
var states = []string{
	"Andaman and Nicobar Islands",
	"Andhra Pradesh",
	"Arunachal Pradesh",
	"Assam",
	"Bihar",
	"Chandigarh",
	"Chhattisgarh",
	"Dadra and Nagar Haveli and Daman and Diu",
	"Delhi",
	"Goa",
	"Gujarat",
	"Haryana",
	"Himachal Pradesh",
	"Jammu and Kashmir",
	"Jharkhand",
	"Karnataka",
	"Kerala",
	"Ladakh",
	"Lakshadweep",
	"Madhya Pradesh",
	"Maharashtra",
	"Manipur",
	"Meghalaya",
	"Mizoram",
	"Nagaland",
	"Odisha",
	"Puducherry",
	"Punjab",
	"Rajasthan",
	"Sikkim",
	"Tamil Nadu",
	"Telangana",
	"Tripura",
	"Uttar Pradesh",
	"Uttarakhand",
	"West Bengal",
}

// NormalizeState resolves a user-entered state name to its canonical
// spelling. Resolution tries, in order: exact case-insensitive match,
// Double Metaphone code overlap, and Jaro-Winkler similarity above
// [fuzzyStateThreshold]. Returns false when nothing resolves.
func NormalizeState(input string) (string, bool) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", false
	}

	for _, s := range states {
		if strings.EqualFold(in, s) {
			return s, true
		}
	}

	inCodes := stateCodes(in)
	best := ""
	bestScore := 0.0
	for _, s := range states {
		if !codesOverlap(inCodes, stateCodes(s)) {
			continue
		}
		if score := stateSimilarity(in, s); score > bestScore {
			best, bestScore = s, score
		}
	}
	if best != "" {
		return best, true
	}

	// No phonetic candidate; fall back to pure string similarity with a
	// stricter threshold.
	for _, s := range states {
		if score := stateSimilarity(in, s); score >= fuzzyStateThreshold && score > bestScore {
			best, bestScore = s, score
		}
	}
	if best != "" {
		return best, true
	}
	return "", false
}

// stateCodes returns the union of Double Metaphone codes for every word in
// the name. Empty codes are excluded.
func stateCodes(name string) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(name))
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// stateSimilarity is the best Jaro-Winkler score between the input and the
// canonical name, comparing both the full strings and their space-stripped
// forms.
func stateSimilarity(input, canonical string) float64 {
	in := strings.ToLower(input)
	cn := strings.ToLower(canonical)

	score := matchr.JaroWinkler(in, cn, false)
	if s := matchr.JaroWinkler(
		strings.ReplaceAll(in, " ", ""),
		strings.ReplaceAll(cn, " ", ""),
		false,
	); s > score {
		score = s
	}
	return score
}
