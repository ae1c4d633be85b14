// Package cleaner turns a rendered page into the content a caller asked for:
// the page HTML as captured, a boilerplate-free extract, Markdown or plain
// text.
package cleaner

import (
	"math"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/pagerender/models"
	"github.com/use-agent/pagerender/simhash"
)

// Output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Extraction modes.
const (
	ExtractRaw         = "raw"
	ExtractReadability = "readability"
	ExtractPruning     = "pruning"
	ExtractAuto        = "auto"
)

// Options selects what Clean produces. The zero value returns the page HTML
// untouched.
type Options struct {
	Format      string
	ExtractMode string

	// Selector keeps only elements matching a CSS selector. Applied first.
	Selector string

	IncludeTags []string
	ExcludeTags []string

	// Citations rewrites Markdown inline links as numbered references.
	Citations bool

	// Links collects the page's links into Output.Links.
	Links bool
}

// Output is the converted page.
type Output struct {
	Content  string
	Metadata models.Metadata
	Links    *models.LinksResult
	Tokens   models.TokenInfo
}

// Cleaner holds the Markdown converter shared by all conversions. It is safe
// for concurrent use.
type Cleaner struct {
	md *converter.Converter
}

// New returns a Cleaner.
func New() *Cleaner {
	return &Cleaner{md: newMarkdownConverter()}
}

// Clean converts rawHTML captured from sourceURL according to opts.
//
// Flow:
//  1. Narrow the document: CSS selector, then include/exclude tags.
//  2. Extract main content (skipped in raw mode).
//  3. Convert to the requested format.
//  4. Collect metadata, fingerprints, links and token estimates.
func (c *Cleaner) Clean(rawHTML, sourceURL string, opts Options) (*Output, error) {
	// ── 1. Narrow ───────────────────────────────────────────────────
	doc := rawHTML
	if opts.Selector != "" {
		selected, err := ApplyCSSSelector(doc, opts.Selector)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeInvalidInput,
				"invalid css_selector "+opts.Selector, err)
		}
		doc = selected
	}
	doc = FilterContent(doc, opts.IncludeTags, opts.ExcludeTags)

	// ── 2. Extract ──────────────────────────────────────────────────
	art := extract(opts.ExtractMode, doc, sourceURL)

	// ── 3. Convert ──────────────────────────────────────────────────
	var content string
	switch opts.Format {
	case FormatMarkdown:
		md, err := c.ToMarkdown(art.html, sourceURL)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeConversion, "markdown conversion failed", err)
		}
		if opts.Citations {
			md = ConvertToCitations(md)
		}
		content = md
	case FormatText:
		content = art.text()
	default:
		content = art.html
	}

	// ── 4. Metadata ─────────────────────────────────────────────────
	out := &Output{
		Content:  content,
		Metadata: pageMetadata(rawHTML, sourceURL, art),
		Tokens:   tokenInfo(rawHTML, content),
	}
	out.Metadata.ContentFingerprint = simhash.Format(simhash.Fingerprint(art.text()))
	out.Metadata.StructureFingerprint = simhash.Format(simhash.FingerprintDOM(rawHTML))
	if opts.Links {
		links := ExtractLinks(rawHTML, sourceURL)
		out.Links = &links
	}
	return out, nil
}

func tokenInfo(original, cleaned string) models.TokenInfo {
	before, after := EstimateTokens(original), EstimateTokens(cleaned)
	savings := 0.0
	if before > 0 {
		savings = float64(before-after) / float64(before) * 100
		savings = math.Round(savings*100) / 100
	}
	return models.TokenInfo{
		OriginalEstimate: before,
		CleanedEstimate:  after,
		SavingsPercent:   savings,
	}
}
