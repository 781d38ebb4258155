package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sitemap lists the pages of the deployed book from its sitemap.xml.
type Sitemap struct {
	url    string
	client *http.Client
}

func NewSitemap(url string, timeout time.Duration) *Sitemap {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Sitemap{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type sitemapXML struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// ListPages fetches and parses the sitemap. A failure here is fatal to the
// whole sync run since no pages can be enumerated without it.
func (s *Sitemap) ListPages(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap %s: unexpected status %s", s.url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sitemap: %w", err)
	}

	// encoding/xml matches elements by local name, so both namespaced and
	// plain sitemaps decode the same way.
	var parsed sitemapXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse sitemap XML: %w", err)
	}

	seen := make(map[string]struct{}, len(parsed.URLs))
	urls := make([]string, 0, len(parsed.URLs))
	for _, u := range parsed.URLs {
		if u.Loc == "" {
			continue
		}
		if _, ok := seen[u.Loc]; ok {
			continue
		}
		seen[u.Loc] = struct{}{}
		urls = append(urls, u.Loc)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap %s contains no page URLs", s.url)
	}
	return urls, nil
}
