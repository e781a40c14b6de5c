package competitors

import "strings"

// Similarity returns the Jaccard similarity of the lower-cased whitespace
// token sets of query and title. Either side empty scores 0.
func Similarity(query, title string) float64 {
	queryWords := tokenSet(query)
	titleWords := tokenSet(title)
	if len(queryWords) == 0 || len(titleWords) == 0 {
		return 0
	}

	intersection := 0
	for w := range queryWords {
		if _, ok := titleWords[w]; ok {
			intersection++
		}
	}
	union := len(queryWords) + len(titleWords) - intersection

	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
