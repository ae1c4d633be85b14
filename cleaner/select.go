package cleaner

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ApplyCSSSelector returns the concatenated outer HTML of the elements
// matching selector. With no match it returns rawHTML unchanged.
func ApplyCSSSelector(rawHTML, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", err
	}
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	nodes := cascadia.QueryAll(root, sel)
	if len(nodes) == 0 {
		return rawHTML, nil
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// FilterContent removes elements matching any of excludeTags, then keeps only
// those matching includeTags. Include selectors that match nothing leave the
// document as it is after exclusion.
func FilterContent(rawHTML string, includeTags, excludeTags []string) string {
	if len(includeTags) == 0 && len(excludeTags) == 0 {
		return rawHTML
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	for _, s := range excludeTags {
		doc.Find(s).Remove()
	}

	if len(includeTags) > 0 {
		if kept := doc.Find(strings.Join(includeTags, ", ")); kept.Length() > 0 {
			var b strings.Builder
			kept.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					b.WriteString(h)
				}
			})
			return b.String()
		}
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}
