// Package source fetches the material an article is written from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const (
	userAgent      = "Mozilla/5.0"
	fetchTimeout   = 90 * time.Second
	maxPageBytes   = 8 << 20
	minReadability = 200
)

// ErrNoContent means the page had no paragraph text.
var ErrNoContent = errors.New("no paragraph content found")

// 噪声区域：导航、页眉页脚、评论等。
var noiseSelectors = "header, footer, nav, script, style, aside, .sidebar, [role=\"navigation\"], [class*=\"comments\"]"

// Document is a fetched source page.
type Document struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Scraper downloads pages and extracts their main text.
type Scraper struct {
	client   *http.Client
	detector *Detector
	logger   *slog.Logger
}

// NewScraper uses a 90s client when client is nil. detector may be nil.
func NewScraper(client *http.Client, detector *Detector, logger *slog.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scraper{client: client, detector: detector, logger: logger}
}

// Fetch downloads rawURL and extracts its article text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (Document, error) {
	s.logger.Info("scraping source", "url", rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %s: status code %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	title, content, err := Extract(rawURL, string(body))
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	doc := Document{URL: rawURL, Title: title, Content: content}
	if s.detector != nil {
		if lang, ok := s.detector.Detect(content); ok {
			doc.Language = lang
		}
	}
	s.logger.Info("scraped source", "url", rawURL, "chars", len(content), "language", doc.Language)
	return doc, nil
}

// Extract pulls the title and paragraph text out of a page. Readability is
// tried first; short or failed results fall back to the largest
// paragraph-bearing block of the page.
func Extract(rawURL, html string) (string, string, error) {
	if u, err := url.Parse(rawURL); err == nil {
		parser := readability.NewParser()
		article, err := parser.Parse(strings.NewReader(html), u)
		if err == nil {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
			if err == nil {
				if text := paragraphs(doc.Selection); len(text) >= minReadability {
					return normalize(article.Title), text, nil
				}
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := normalize(doc.Find("title").First().Text())
	doc.Find(noiseSelectors).Remove()

	best := doc.Find("body")
	bestLen := 0
	doc.Find("div, article, main, section").Each(func(_ int, sel *goquery.Selection) {
		if n := len(paragraphs(sel)); n > bestLen {
			best, bestLen = sel, n
		}
	})
	text := paragraphs(best)
	if text == "" {
		return title, "", ErrNoContent
	}
	return title, text, nil
}

// paragraphs joins the non-empty <p> texts under sel with blank lines.
func paragraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := normalize(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
