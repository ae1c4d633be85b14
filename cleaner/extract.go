package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest extracted text, in bytes, accepted from an
// extractor. Shorter results fall back to the input document.
const minContentLength = 50

// article is the extracted main content of a page.
type article struct {
	html string

	// plain is the extractor's text rendition; empty means derive it from html.
	plain string

	// meta is readability's view of the page, zero when it was not run or failed.
	meta readability.Article
}

func (a article) text() string {
	if a.plain != "" {
		return strings.TrimSpace(a.plain)
	}
	return visibleText(a.html)
}

// extract runs the extractor selected by mode. Unknown modes behave like raw.
func extract(mode, doc, sourceURL string) article {
	switch mode {
	case ExtractReadability:
		meta, ok := readabilityExtract(doc, sourceURL)
		if !ok {
			return article{html: doc}
		}
		return article{html: meta.Content, plain: meta.TextContent, meta: meta}
	case ExtractPruning:
		meta, _ := readabilityExtract(doc, sourceURL)
		return article{html: prune(doc, sourceURL), meta: meta}
	case ExtractAuto:
		return autoExtract(doc, sourceURL)
	default:
		return article{html: doc}
	}
}

// readabilityExtract runs Mozilla Readability. It reports false when the URL
// cannot be parsed, extraction fails, or too little text was found.
func readabilityExtract(doc, sourceURL string) (readability.Article, bool) {
	u, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}
	art, err := readability.FromReader(strings.NewReader(doc), u)
	if err != nil {
		slog.Warn("readability: extraction failed", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}
	if n := len(strings.TrimSpace(art.TextContent)); n < minContentLength {
		slog.Debug("readability: extracted content too short", "url", sourceURL, "length", n)
		return art, false
	}
	return art, true
}

// prune runs the scoring extractor, returning doc unchanged on failure.
func prune(doc, sourceURL string) string {
	pruned, err := PruneContent(doc)
	if err != nil {
		slog.Warn("pruning: extraction failed", "url", sourceURL, "error", err)
		return doc
	}
	return pruned
}

// autoExtract runs readability and pruning concurrently and keeps the one
// with more text, unless it is over ten times longer than a usable
// alternative.
func autoExtract(doc, sourceURL string) article {
	var (
		meta   readability.Article
		metaOK bool
		pruned string
		wg     sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		meta, metaOK = readabilityExtract(doc, sourceURL)
	}()
	go func() {
		defer wg.Done()
		pruned = prune(doc, sourceURL)
	}()
	wg.Wait()

	prunedArticle := article{html: pruned, meta: meta}
	if !metaOK {
		return prunedArticle
	}

	rText := len(strings.TrimSpace(meta.TextContent))
	pText := len(visibleText(pruned))

	useReadability := rText >= pText
	switch {
	case useReadability && pText > minContentLength && rText > 10*pText:
		useReadability = false
	case !useReadability && rText > minContentLength && pText > 10*rText:
		useReadability = true
	}
	if useReadability {
		return article{html: meta.Content, plain: meta.TextContent, meta: meta}
	}
	return prunedArticle
}

// visibleText returns the trimmed text content of an HTML fragment, without
// script and style bodies.
func visibleText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
