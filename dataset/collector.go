// Package dataset builds and reads the training data of the statistical
// scorer: house articles collected from RSS feeds, reduced to feature vectors.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// DefaultFeeds are the house full-text feeds.
var DefaultFeeds = []string{
	"https://www.intellinews.com/feed/atom?type=full_text",
	"https://www.intellinews.com/feed?client=bloomberg",
}

// DefaultMinChars drops items whose cleaned text is not longer than this.
const DefaultMinChars = 300

// Article is one cleaned feed item.
type Article struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Text  string `json:"text"`
}

// Collector fetches full-text articles from RSS/Atom feeds.
type Collector struct {
	feeds    []string
	client   *http.Client
	minChars int
	logger   *slog.Logger
}

func NewCollector(feeds []string, minChars int, client *http.Client, logger *slog.Logger) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{feeds: feeds, client: client, minChars: minChars, logger: logger}
}

// Collect fetches every feed. A failing feed is logged and skipped.
func (c *Collector) Collect(ctx context.Context) []Article {
	var all []Article
	for _, feedURL := range c.feeds {
		items, err := c.fetchFeed(ctx, feedURL)
		if err != nil {
			c.logger.Warn("feed fetch failed", "url", feedURL, "err", err)
			continue
		}
		all = append(all, items...)
	}
	c.logger.Info("collected articles", "count", len(all))
	return all
}

func (c *Collector) fetchFeed(ctx context.Context, feedURL string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status: %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	c.logger.Info("parsed feed", "url", feedURL, "items", len(feed.Items))

	var out []Article
	for _, item := range feed.Items {
		raw := item.Content
		if raw == "" {
			raw = item.Description
		}
		text := CleanHTML(raw)
		if len([]rune(text)) <= c.minChars {
			c.logger.Debug("skipped short item", "title", item.Title, "chars", len(text))
			continue
		}
		out = append(out, Article{Title: strings.TrimSpace(item.Title), Link: item.Link, Text: text})
	}
	return out, nil
}

// CleanHTML strips markup and collapses whitespace.
func CleanHTML(html string) string {
	if !strings.Contains(html, "<") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	// 块级元素之间补空格，避免相邻段落粘连
	doc.Find("p, br, li, h1, h2, h3, h4, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
