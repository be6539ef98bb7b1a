package col

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// NameSuggestion returns the candidate closest to given, or "" if none is
// within an edit distance of 3.
func NameSuggestion(given string, candidates []string) string {
	best := ""
	bestDist := 3
	for _, c := range candidates {
		if dist := levenshtein.Distance(given, c, nil); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}

// DidYouMean formats a suggestion suffix for a lookup error message.
func DidYouMean(given string, candidates []string) string {
	if s := NameSuggestion(given, candidates); s != "" {
		return " Did you mean '" + s + "'?"
	}
	return ""
}

func quotedList(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i, n := range sorted {
		sorted[i] = "'" + n + "'"
	}
	return strings.Join(sorted, ", ")
}
