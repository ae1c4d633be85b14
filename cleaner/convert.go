package cleaner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter builds a converter that drops non-content tags (base),
// renders CommonMark, and keeps tables with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// ToMarkdown converts an HTML fragment to Markdown, resolving relative link
// and image URLs against sourceURL.
func (c *Cleaner) ToMarkdown(fragment, sourceURL string) (string, error) {
	return c.md.ConvertString(fragment, converter.WithDomain(sourceURL))
}

var inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// ConvertToCitations rewrites Markdown inline links as numbered references
// listed after a rule at the end:
//
//	See [Go](https://go.dev)  →  See [Go][1] ... [1]: https://go.dev
//
// Repeated URLs share a number.
func ConvertToCitations(markdown string) string {
	numbers := make(map[string]int)
	var refs []string

	out := inlineLinkRe.ReplaceAllStringFunc(markdown, func(m string) string {
		parts := inlineLinkRe.FindStringSubmatch(m)
		text, target := parts[1], parts[2]
		n, ok := numbers[target]
		if !ok {
			n = len(numbers) + 1
			numbers[target] = n
			refs = append(refs, fmt.Sprintf("[%d]: %s", n, target))
		}
		return fmt.Sprintf("[%s][%d]", text, n)
	})
	if len(refs) == 0 {
		return markdown
	}
	return out + "\n\n---\n" + strings.Join(refs, "\n")
}
