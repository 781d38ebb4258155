package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const userAgent = "bookrag-ingestion/1.0"

// Heading is one entry of a page's heading hierarchy.
type Heading struct {
	Level int
	Text  string
}

// Page is the extracted content of a single source page: plain text with the
// heading hierarchy preserved, boilerplate stripped.
type Page struct {
	URL      string
	Title    string
	Text     string
	Headings []Heading
}

// FetchError means the page could not be retrieved. Callers treat it as a
// per-page failure, not a job-fatal one.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the page was fetched but no extractable content block was
// found in it.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// contentSelectors are tried in order; the deployed book is Docusaurus-style,
// so the article element usually wins.
var contentSelectors = []string{"article", "main", "div.markdown", `div[role="main"]`}

// boilerplateSelectors are removed from the chosen content block before
// conversion.
var boilerplateSelectors = []string{
	"nav", "aside", "footer", "header", "script", "style",
	".breadcrumbs", ".pagination-nav", ".theme-doc-toc-desktop",
	".theme-doc-toc-mobile", ".theme-edit-this-page", "a.hash-link",
}

type Extractor struct {
	client    *http.Client
	converter *md.Converter
	logger    *slog.Logger
}

func NewExtractor(timeout time.Duration) *Extractor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
		logger:    slog.Default(),
	}
}

// Extract fetches one page and returns its cleaned text and heading hierarchy.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Reason: fmt.Sprintf("invalid HTML: %v", err)}
	}

	title := extractTitle(doc)

	var content *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			content = s
			break
		}
	}
	if content == nil {
		return nil, &ParseError{URL: pageURL, Reason: "no content block found"}
	}

	for _, sel := range boilerplateSelectors {
		content.Find(sel).Remove()
	}

	var headings []Heading
	content.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		headings = append(headings, Heading{
			Level: int(goquery.NodeName(s)[1] - '0'),
			Text:  text,
		})
	})

	text := cleanWhitespace(e.converter.Convert(content))
	if text == "" {
		return nil, &ParseError{URL: pageURL, Reason: "content block is empty"}
	}

	e.logger.Debug("page extracted",
		"url", pageURL, "title", title, "chars", len(text), "headings", len(headings))

	return &Page{
		URL:      pageURL,
		Title:    title,
		Text:     text,
		Headings: headings,
	}, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		// Docusaurus appends the site name after a pipe.
		if i := strings.Index(title, " | "); i > 0 {
			title = title[:i]
		}
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return "Untitled"
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

func cleanWhitespace(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
