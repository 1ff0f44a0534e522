package icc

import "github.com/hashicorp/go-set/v3"

// reservedKeywords is the exclusion set parseName checks identifiers
// against (spec.md §4.1 "Keyword exclusion"). A set rather than a slice
// scan because membership, not order, is what matters here.
var reservedKeywords = set.From([]string{
	"type", "dec", "def", "chan", "let", "do", "in", "pass", "begin", "loop",
	"telltypes", "either", "recursive", "iterative", "self",
})

// isKeyword reports whether text is a reserved keyword.
func isKeyword(text string) bool {
	return reservedKeywords.Contains(text)
}
