// Package format renders finished page records for API callers.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// PageSeparator joins rendered pages in markdown output.
const PageSeparator = "\n\n---\n\n"

// Render returns pages unchanged for JSON output and as one markdown document for
// markdown output.
func Render(pages []crawler.Page, f crawler.OutputFormat) (any, error) {
	switch f {
	case crawler.OutputJSON, "":
		if pages == nil {
			pages = []crawler.Page{}
		}
		return pages, nil
	case crawler.OutputMarkdown:
		return Markdown(pages), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", f)
	}
}

// Markdown renders pages separated by horizontal rules.
func Markdown(pages []crawler.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, PageMarkdown(p))
	}
	return strings.Join(parts, PageSeparator)
}

// PageMarkdown renders one page: title, non-empty metadata, content and source link.
func PageMarkdown(p crawler.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)

	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k, v := range p.Metadata {
			if v != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		b.WriteString("## Metadata\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, p.Metadata[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Content\n\n")
	writeContent(&b, p.Content)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "\n*Source: [%s](%s)*\n", p.URL, p.URL)
	return b.String()
}

func writeContent(b *strings.Builder, c crawler.Content) {
	if c.Kind != crawler.ContentFields {
		b.WriteString(c.Text)
		return
	}
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(b, "### %s\n", name)
		for _, v := range c.Fields[name] {
			fmt.Fprintf(b, "\n- %s", v)
		}
	}
}
