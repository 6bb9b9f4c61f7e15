package crawler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values. A job only moves forward: pending -> running -> completed|failed.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next respects the forward-only lifecycle.
func (s JobStatus) CanTransition(next JobStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// OutputFormat selects how finished records are rendered for the caller.
type OutputFormat string

// Supported output formats.
const (
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
)

// Valid reports whether the format is known.
func (f OutputFormat) Valid() bool {
	return f == OutputJSON || f == OutputMarkdown
}

// ContentMode selects the body rendering used when no field selectors are supplied.
type ContentMode string

// Supported body modes.
const (
	ContentModeMarkdown ContentMode = "markdown"
	ContentModeText     ContentMode = "text"
)

// CrawlSpec captures one crawl request. It is never mutated after submission.
type CrawlSpec struct {
	StartURL        string            `json:"start_url"`
	MaxPages        int               `json:"max_pages"`
	AllowedDomains  []string          `json:"allowed_domains,omitempty"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty"`
	RenderJS        bool              `json:"render_js"`
	OutputFormat    OutputFormat      `json:"output_format"`
	Selectors       map[string]string `json:"selectors,omitempty"`
	FollowLinks     bool              `json:"follow_links"`
}

// ScrapeRequest describes a single-page retrieval.
type ScrapeRequest struct {
	URL       string
	RenderJS  bool
	Selectors map[string]string
}

// Job is the record shared between the crawl goroutine and status pollers.
type Job struct {
	ID           string     `json:"job_id"`
	Status       JobStatus  `json:"status"`
	TotalPages   int        `json:"total_pages"`
	PagesScraped int        `json:"pages_scraped"`
	Results      []Page     `json:"results"`
	Error        string     `json:"error,omitempty"`
	Spec         CrawlSpec  `json:"-"`
	Submitted    time.Time  `json:"submitted_at"`
	Started      *time.Time `json:"started_at,omitempty"`
	Finished     *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j Job) Clone() Job {
	cp := j
	if j.Results != nil {
		cp.Results = make([]Page, len(j.Results))
		for i, p := range j.Results {
			cp.Results[i] = p.Clone()
		}
	}
	if j.Started != nil {
		ts := *j.Started
		cp.Started = &ts
	}
	if j.Finished != nil {
		ts := *j.Finished
		cp.Finished = &ts
	}
	return cp
}

// ContentKind tags which Content variant is populated.
type ContentKind string

// Content variants.
const (
	ContentText     ContentKind = "text"
	ContentMarkdown ContentKind = "markdown"
	ContentFields   ContentKind = "fields"
)

// Content is the extracted body of a page: a plain text body, a markdown rendering, or
// a field name to text fragments mapping. Exactly one variant is set, named by Kind.
type Content struct {
	Kind   ContentKind
	Text   string
	Fields map[string][]string
}

// TextContent builds a plain text Content.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// MarkdownContent builds a markdown Content.
func MarkdownContent(md string) Content {
	return Content{Kind: ContentMarkdown, Text: md}
}

// FieldContent builds a field-map Content.
func FieldContent(fields map[string][]string) Content {
	if fields == nil {
		fields = map[string][]string{}
	}
	return Content{Kind: ContentFields, Fields: fields}
}

// Clone deep copies the field map.
func (c Content) Clone() Content {
	cp := c
	if c.Fields != nil {
		cp.Fields = make(map[string][]string, len(c.Fields))
		for k, v := range c.Fields {
			cp.Fields[k] = append([]string(nil), v...)
		}
	}
	return cp
}

// MarshalJSON encodes the text variants as a string and the field variant as an object.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentFields:
		fields := c.Fields
		if fields == nil {
			fields = map[string][]string{}
		}
		return json.Marshal(fields)
	case ContentText, ContentMarkdown, "":
		return json.Marshal(c.Text)
	default:
		return nil, fmt.Errorf("unknown content kind %q", c.Kind)
	}
}

// UnmarshalJSON accepts either encoding. A string decodes as text unless Kind was preset.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if c.Kind != ContentMarkdown {
			c.Kind = ContentText
		}
		c.Text = text
		c.Fields = nil
		return nil
	}
	var fields map[string][]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	c.Kind = ContentFields
	c.Text = ""
	c.Fields = fields
	return nil
}

// Metadata keys always present on a Page.
const (
	MetaDescription = "description"
	MetaKeywords    = "keywords"
)

// Page is the structured record extracted from one fetched document.
type Page struct {
	URL       string
	Title     string
	Content   Content
	Metadata  map[string]string
	Timestamp time.Time
}

type pageJSON struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	ContentKind ContentKind       `json:"content_kind"`
	Content     Content           `json:"content"`
	Metadata    map[string]string `json:"metadata"`
	Timestamp   time.Time         `json:"timestamp"`
}

// MarshalJSON writes the page with an explicit content_kind discriminator.
func (p Page) MarshalJSON() ([]byte, error) {
	kind := p.Content.Kind
	if kind == "" {
		kind = ContentText
	}
	out, err := json.Marshal(pageJSON{
		URL:         p.URL,
		Title:       p.Title,
		ContentKind: kind,
		Content:     p.Content,
		Metadata:    p.Metadata,
		Timestamp:   p.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}
	return out, nil
}

// UnmarshalJSON restores the Content variant from content_kind.
func (p *Page) UnmarshalJSON(data []byte) error {
	var raw struct {
		pageJSON
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal page: %w", err)
	}
	content := Content{Kind: raw.ContentKind}
	if len(raw.Content) > 0 {
		if err := content.UnmarshalJSON(raw.Content); err != nil {
			return err
		}
	}
	if raw.ContentKind != "" && raw.ContentKind != content.Kind {
		return fmt.Errorf("content_kind %q does not match content payload", raw.ContentKind)
	}
	*p = Page{
		URL:       raw.URL,
		Title:     raw.Title,
		Content:   content,
		Metadata:  raw.Metadata,
		Timestamp: raw.Timestamp,
	}
	return nil
}

// Clone deep copies the page.
func (p Page) Clone() Page {
	cp := p
	cp.Content = p.Content.Clone()
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// PageResult is a successful page fetch: the extracted record plus the outbound links
// found in the raw document before cleaning.
type PageResult struct {
	Page  Page
	Links []string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID   string
	URL     string
	Headers http.Header
}

// FetchResponse is the raw document returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
