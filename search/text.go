package search

import "strings"

// matchedKeywords returns the keywords that occur literally in query,
// in keyword order. The result is never nil.
func matchedKeywords(keywords []string, query string) []string {
	matched := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != "" && strings.Contains(query, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
