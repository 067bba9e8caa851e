package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/specterhq/specter/models"
)

// ExtractMetadata pulls page-level metadata out of the document: title,
// description, site name and language, with Open Graph tags taking
// precedence over their plain-HTML equivalents.
func ExtractMetadata(rawHTML, sourceURL string) models.Metadata {
	meta := models.Metadata{SourceURL: sourceURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return meta
	}

	meta.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	meta.Description = firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	meta.SiteName = metaContent(doc, `meta[property="og:site_name"]`)

	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		meta.Language = strings.TrimSpace(lang)
	}

	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	if content, ok := doc.Find(selector).First().Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
