// Package extract turns raw HTML into cleaned HTML and structured page records.
// Everything here is a pure transformation with no I/O.
package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

var (
	svgElement = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	svgDataURI = regexp.MustCompile(`data:image/svg\+xml;base64,[^"']*`)
	whitespace = regexp.MustCompile(`\s+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Options controls how the body of a page is rendered.
type Options struct {
	// Selectors maps field names to CSS selectors. When non-empty the page content is
	// a field map and Mode is ignored.
	Selectors map[string]string
	Mode      crawler.ContentMode
}

// Extractor converts documents to pages.
type Extractor struct {
	mode crawler.ContentMode
}

// New builds an Extractor whose default body mode is mode (markdown when empty).
func New(mode crawler.ContentMode) *Extractor {
	if mode == "" {
		mode = crawler.ContentModeMarkdown
	}
	return &Extractor{mode: mode}
}

// Mode returns the configured default body mode.
func (e *Extractor) Mode() crawler.ContentMode {
	return e.mode
}

// Clean strips inline SVG and SVG data URIs and unwraps hyperlinks to their visible text.
func Clean(raw string) string {
	cleaned := svgElement.ReplaceAllString(raw, "")
	cleaned = svgDataURI.ReplaceAllString(cleaned, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleaned))
	if err != nil {
		return cleaned
	}
	doc.Find("svg").Remove()
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.HasPrefix(strings.TrimSpace(src), "data:image/svg+xml") {
			s.Remove()
		}
	})
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml(html.EscapeString(s.Text()))
	})

	out, err := doc.Html()
	if err != nil {
		return cleaned
	}
	return out
}

// Extract cleans raw and builds the page record for pageURL. Malformed markup never
// fails: missing pieces come back as empty strings.
func (e *Extractor) Extract(raw, pageURL string, opts Options, now time.Time) crawler.Page {
	cleaned := Clean(raw)
	page := crawler.Page{
		URL: pageURL,
		Metadata: map[string]string{
			crawler.MetaDescription: "",
			crawler.MetaKeywords:    "",
		},
		Timestamp: now,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleaned))
	if err != nil {
		page.Content = e.emptyContent(opts)
		return page
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Metadata[crawler.MetaDescription] = metaContent(doc, crawler.MetaDescription)
	page.Metadata[crawler.MetaKeywords] = metaContent(doc, crawler.MetaKeywords)

	switch {
	case len(opts.Selectors) > 0:
		page.Content = crawler.FieldContent(selectFields(doc, opts.Selectors))
	case e.modeFor(opts) == crawler.ContentModeText:
		page.Content = crawler.TextContent(plainText(doc))
	default:
		page.Content = crawler.MarkdownContent(toMarkdown(cleaned))
	}
	return page
}

func (e *Extractor) modeFor(opts Options) crawler.ContentMode {
	if opts.Mode != "" {
		return opts.Mode
	}
	return e.mode
}

func (e *Extractor) emptyContent(opts Options) crawler.Content {
	switch {
	case len(opts.Selectors) > 0:
		fields := make(map[string][]string, len(opts.Selectors))
		for name := range opts.Selectors {
			fields[name] = []string{}
		}
		return crawler.FieldContent(fields)
	case e.modeFor(opts) == crawler.ContentModeText:
		return crawler.TextContent("")
	default:
		return crawler.MarkdownContent("")
	}
}

func metaContent(doc *goquery.Document, name string) string {
	var value string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), name) {
			return true
		}
		value = s.AttrOr("content", "")
		return false
	})
	return value
}

func selectFields(doc *goquery.Document, selectors map[string]string) map[string][]string {
	fields := make(map[string][]string, len(selectors))
	for name, selector := range selectors {
		values := []string{}
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			values = append(values, strings.TrimSpace(s.Text()))
		})
		fields[name] = values
	}
	return fields
}

func plainText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.TrimSpace(whitespace.ReplaceAllString(body.Text(), " "))
}

func toMarkdown(cleaned string) string {
	converter := md.NewConverter("", true, nil)
	converter.Remove("img", "picture", "script", "style", "noscript", "head")
	converter.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
			return md.String(content)
		},
	})
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(out, "\n\n"))
}

// Links returns the absolute http(s) targets of every <a href> in raw, resolved against
// pageURL, with fragments stripped and duplicates dropped, in document order.
func Links(raw, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		target, err := base.Parse(href)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return
		}
		target.Fragment = ""
		target.RawFragment = ""
		link := target.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
