package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
)

const introductionLimit = 300

// Taxonomy maps a display name to its CMS id.
type Taxonomy struct {
	Name string `yaml:"name" json:"name"`
	ID   int    `yaml:"id" json:"id"`
}

// Config holds the CMS endpoint, credentials and taxonomies. With no
// Endpoint the payload is written to Outbox instead.
type Config struct {
	Endpoint     string     `yaml:"endpoint"`
	Username     string     `yaml:"username"`
	Password     string     `yaml:"password"`
	Outbox       string     `yaml:"outbox"`
	Countries    []Taxonomy `yaml:"countries"`
	Publications []Taxonomy `yaml:"publications"`
	Industries   []Taxonomy `yaml:"industries"`
}

// Names returns the display names of a taxonomy list, for prompting.
func Names(list []Taxonomy) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Name)
	}
	return out
}

// Post is an edited article ready for the CMS.
type Post struct {
	Title        string
	Summary      string
	Body         string
	Countries    []string
	Publications []string
	Industries   []string
}

// Receipt describes where a post ended up.
type Receipt struct {
	ID       string    `json:"id"`
	URL      string    `json:"url,omitempty"`
	Outbox   string    `json:"outbox,omitempty"`
	PostedAt time.Time `json:"posted_at"`
}

// payload is the CMS wire format.
type payload struct {
	Title        string `json:"title"`
	Introduction string `json:"introduction"`
	FullText     string `json:"full_text"`
	Countries    []int  `json:"countries"`
	Publications []int  `json:"publications"`
	Industries   []int  `json:"industries"`
}

type createResp struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Publisher renders posts and delivers them to the CMS.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, client *http.Client, logger *slog.Logger) (*Publisher, error) {
	if cfg.Endpoint == "" && cfg.Outbox == "" {
		return nil, errors.New("cms config must include an endpoint or an outbox directory")
	}
	if cfg.Endpoint != "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, errors.New("cms endpoint requires username and password")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{cfg: cfg, client: client, logger: logger}, nil
}

// Publish converts the body to HTML, maps taxonomy names to ids and posts
// the result (or writes it to the outbox).
func (p *Publisher) Publish(ctx context.Context, post Post) (Receipt, error) {
	body, err := p.transform(post)
	if err != nil {
		return Receipt{}, err
	}
	if p.cfg.Endpoint == "" {
		return p.writeOutbox(body)
	}
	return p.post(ctx, body)
}

func (p *Publisher) transform(post Post) (payload, error) {
	if strings.TrimSpace(post.Title) == "" || strings.TrimSpace(post.Body) == "" {
		return payload{}, errors.New("title and body are required")
	}
	intro := post.Summary
	if intro == "" {
		intro = defaultDigest(post.Body, introductionLimit)
	}
	html, err := mdToHTML(post.Body)
	if err != nil {
		return payload{}, fmt.Errorf("render body: %w", err)
	}

	out := payload{
		Title:        strings.TrimSpace(post.Title),
		Introduction: intro,
		FullText:     normalizeForCMS(html),
		Countries:    mapIDs(p.cfg.Countries, post.Countries),
		Publications: mapIDs(p.cfg.Publications, post.Publications),
		Industries:   mapIDs(p.cfg.Industries, post.Industries),
	}
	p.logger.Info("mapped taxonomies",
		"countries", len(out.Countries),
		"publications", len(out.Publications),
		"industries", len(out.Industries))
	return out, nil
}

// mapIDs keeps the names the CMS knows about, in input order.
func mapIDs(known []Taxonomy, names []string) []int {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		for _, t := range known {
			if strings.EqualFold(t.Name, name) {
				ids = append(ids, t.ID)
				break
			}
		}
	}
	return ids
}

func (p *Publisher) post(ctx context.Context, body payload) (Receipt, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("post article: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, fmt.Errorf("read cms response: %w", err)
	}
	var created createResp
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &created); err != nil && resp.StatusCode < 300 {
			return Receipt{}, fmt.Errorf("decode cms response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Receipt{}, fmt.Errorf("cms returned status %d: %s", resp.StatusCode, created.Error)
	}
	if created.ID == "" {
		return Receipt{}, errors.New("cms response has no article id")
	}
	p.logger.Info("article posted", "id", created.ID, "url", created.URL)
	return Receipt{ID: created.ID, URL: created.URL, PostedAt: time.Now().UTC()}, nil
}

func (p *Publisher) writeOutbox(body payload) (Receipt, error) {
	if err := os.MkdirAll(p.cfg.Outbox, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("create outbox: %w", err)
	}
	id := uuid.New().String()
	path := filepath.Join(p.cfg.Outbox, id+".json")
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return Receipt{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("write outbox: %w", err)
	}
	p.logger.Info("article written to outbox", "path", path)
	return Receipt{ID: id, Outbox: path, PostedAt: time.Now().UTC()}, nil
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	listRe    = regexp.MustCompile(`(?s)<(ol|ul)[^>]*>(.*?)</(?:ol|ul)>`)
	liRe      = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	headingRe = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
)

// CMS 正文编辑器只接受段落：标题转成加粗段落，列表展开成逐行段落。
func normalizeForCMS(html string) string {
	html = headingRe.ReplaceAllString(html, "<p><strong>$1</strong></p>")
	return listRe.ReplaceAllStringFunc(html, func(block string) string {
		parts := listRe.FindStringSubmatch(block)
		items := liRe.FindAllStringSubmatch(parts[2], -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			text := strings.TrimSpace(item[1])
			if parts[1] == "ol" {
				fmt.Fprintf(&b, "<p>%d. %s</p>", i+1, text)
			} else {
				fmt.Fprintf(&b, "<p>• %s</p>", text)
			}
		}
		return b.String()
	})
}

func defaultDigest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit])
}
