package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pagerender/models"
)

// pageMetadata combines readability's metadata, when available, with the
// <title>, description and Open Graph tags of the full page.
func pageMetadata(rawHTML, sourceURL string, art article) models.Metadata {
	md := models.Metadata{
		Title:       art.meta.Title,
		Description: art.meta.Excerpt,
		SiteName:    art.meta.SiteName,
		Author:      art.meta.Byline,
		Language:    art.meta.Language,
		SourceURL:   sourceURL,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return md
	}
	if md.Title == "" {
		md.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if md.Language == "" {
		md.Language, _ = doc.Find("html").Attr("lang")
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		name := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		switch name {
		case "description":
			if md.Description == "" {
				md.Description = content
			}
		case "og:site_name":
			if md.SiteName == "" {
				md.SiteName = content
			}
		case "og:title":
			md.OGTitle = content
		case "og:description":
			md.OGDescription = content
		case "og:image":
			md.OGImage = content
		case "og:type":
			md.OGType = content
		}
	})
	return md
}

// ExtractLinks returns the page's http(s) links, resolved against sourceURL,
// deduplicated and split by whether they stay on the source host.
func ExtractLinks(rawHTML, sourceURL string) models.LinksResult {
	res := models.LinksResult{Internal: []models.Link{}, External: []models.Link{}}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return res
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return res
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		link := models.Link{Href: abs, Text: strings.Join(strings.Fields(s.Text()), " ")}
		if strings.EqualFold(u.Host, base.Host) {
			res.Internal = append(res.Internal, link)
		} else {
			res.External = append(res.External, link)
		}
	})
	return res
}
