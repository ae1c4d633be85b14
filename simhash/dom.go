package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// FingerprintDOM fingerprints the sequence of start tags in an HTML document,
// ignoring text and attributes, so that two renders of a page template
// compare equal even when their content differs. Tags are hashed as
// overlapping triples; documents with fewer than three tags hash the tags
// themselves.
func FingerprintDOM(doc string) uint64 {
	tags := startTags(doc)
	if len(tags) < 3 {
		return fingerprintTokens(tags)
	}
	return fingerprintTokens(shingles(tags, 3))
}

func startTags(doc string) []string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// shingles returns the n-grams of tokens joined by "/".
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "/"))
	}
	return out
}
