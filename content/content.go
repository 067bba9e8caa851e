// Package content shapes fetched HTML into the caller's requested output:
// raw HTML, markdown, plain text, with optional readability extraction and
// CSS-selector narrowing.
package content

import (
	"bytes"
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/specterhq/specter/models"
)

// Output formats and extraction modes accepted by Shape.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"

	ModeRaw     = "raw"
	ModeArticle = "article"
)

// minArticleLength is the minimum text length for readability output to be
// trusted; below it the extractor likely missed the main content and the
// raw document is used instead.
const minArticleLength = 50

// Shaper converts raw HTML into the requested output format. Safe for
// concurrent use; the markdown converter is goroutine-safe and reused.
type Shaper struct {
	md *converter.Converter
}

// NewShaper creates a Shaper with a reusable markdown converter: base plugin
// (strips script/style/head noise), commonmark rendering, and compact tables.
func NewShaper() *Shaper {
	return &Shaper{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// ValidateSelector checks a CSS selector before any fetch work happens, so a
// bad selector fails fast instead of after a browser launch.
func ValidateSelector(selector string) error {
	if selector == "" {
		return nil
	}
	if _, err := cascadia.Parse(selector); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", selector, err)
	}
	return nil
}

// Shape runs the shaping pipeline: optional selector narrowing, optional
// readability extraction, then format conversion. It also extracts page
// metadata from the (pre-narrowing) document.
func (s *Shaper) Shape(rawHTML, sourceURL, format, mode, cssSelector string) (string, models.Metadata, error) {
	meta := ExtractMetadata(rawHTML, sourceURL)

	shaped := rawHTML
	if cssSelector != "" {
		narrowed, err := applySelector(rawHTML, cssSelector)
		if err != nil {
			return "", meta, models.NewFetchError(models.ErrCodeInvalidInput, "css selector failed", err)
		}
		shaped = narrowed
	}

	if mode == ModeArticle {
		article, ok := extractArticle(shaped, sourceURL)
		if ok {
			shaped = article.Content
			if article.Title != "" {
				meta.Title = article.Title
			}
			if meta.Description == "" {
				meta.Description = article.Excerpt
			}
			if meta.SiteName == "" {
				meta.SiteName = article.SiteName
			}
		}
	}

	switch format {
	case FormatMarkdown:
		domain := ""
		if u, err := nurl.Parse(sourceURL); err == nil {
			domain = u.Scheme + "://" + u.Host
		}
		md, err := s.md.ConvertString(shaped, converter.WithDomain(domain))
		if err != nil {
			return "", meta, models.NewFetchError(models.ErrCodeExtraction, "markdown conversion failed", err)
		}
		return md, meta, nil

	case FormatText:
		return visibleText(shaped), meta, nil

	default:
		return shaped, meta, nil
	}
}

// extractArticle runs the Mozilla Readability algorithm. The bool result
// reports whether the extraction is trustworthy; on false the caller keeps
// the input unchanged — shaping must never fail just because readability
// choked on a page.
func extractArticle(rawHTML, sourceURL string) (readability.Article, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	if len(strings.TrimSpace(article.TextContent)) < minArticleLength {
		slog.Warn("readability: extracted content too short, keeping raw document",
			"url", sourceURL, "length", len(article.TextContent))
		return readability.Article{}, false
	}

	return article, true
}

// applySelector returns the concatenated outer HTML of all elements matching
// the selector. No matches falls back to the original document so downstream
// shaping still has content to work with.
func applySelector(rawHTML, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// visibleText flattens HTML into whitespace-separated visible text.
func visibleText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var buf strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(buf.String())
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "head":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "head":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
