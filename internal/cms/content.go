package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a CMS resource cannot be located.
var ErrNotFound = errors.New("cms: not found")

// ContentPage is a localized block of editorial copy sourced from the CMS or local markdown.
type ContentPage struct {
	Kind      string
	Slug      string
	Lang      string
	Title     string
	Summary   string
	Body      string
	HTML      template.HTML
	LinkText  string
	LinkURL   string
	UpdatedAt time.Time
}

type contentFrontMatter struct {
	Title     string `yaml:"title"`
	Summary   string `yaml:"summary"`
	Lang      string `yaml:"lang"`
	LinkText  string `yaml:"link_text"`
	LinkURL   string `yaml:"link_url"`
	UpdatedAt string `yaml:"updated_at"`
}

const (
	defaultContentDir = "content"
	defaultCacheTTL   = 5 * time.Minute
)

// Client loads content pages, consulting the remote CMS when configured and falling back
// to markdown files under the content directory.
type Client struct {
	baseURL    string
	contentDir string
	http       *http.Client
	md         goldmark.Markdown
	policy     *bluemonday.Policy
	cacheTTL   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	page    ContentPage
	expires time.Time
}

// NewClient constructs a content client. An empty baseURL reads local markdown only.
func NewClient(baseURL, contentDir string) *Client {
	contentDir = strings.TrimSpace(contentDir)
	if contentDir == "" {
		contentDir = defaultContentDir
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		contentDir: contentDir,
		http:       &http.Client{Timeout: 5 * time.Second},
		md:         goldmark.New(goldmark.WithExtensions(extension.Typographer, extension.Linkify)),
		policy:     newContentPolicy(),
		cacheTTL:   defaultCacheTTL,
		cache:      map[string]cacheEntry{},
		now:        time.Now,
	}
}

// SetCacheDuration overrides the in-memory cache duration.
func (c *Client) SetCacheDuration(d time.Duration) {
	if d <= 0 {
		d = time.Minute
	}
	c.cacheTTL = d
}

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// GetContentPage fetches a localized page, preferring the remote CMS and falling back to
// local markdown in lang, then en, then ja.
func (c *Client) GetContentPage(ctx context.Context, kind, slug, lang string) (ContentPage, error) {
	kind = strings.TrimSpace(strings.ToLower(kind))
	if kind == "" {
		kind = "content"
	}
	slug = sanitizeSlug(slug)
	if slug == "" || sanitizeSlug(kind) == "" {
		return ContentPage{}, ErrNotFound
	}
	lang = normalizeLang(lang)

	key := strings.Join([]string{kind, lang, slug}, "|")
	if page, ok := c.cached(key); ok {
		return page, nil
	}

	page, err := c.fetch(ctx, kind, slug, lang)
	if err != nil {
		return ContentPage{}, err
	}
	rendered, err := c.render(page.Body)
	if err != nil {
		return ContentPage{}, fmt.Errorf("cms: render %s/%s: %w", kind, slug, err)
	}
	page.HTML = rendered
	c.store(key, page)
	return page, nil
}

func (c *Client) fetch(ctx context.Context, kind, slug, lang string) (ContentPage, error) {
	if c.baseURL != "" {
		page, err := c.fetchRemote(ctx, kind, slug, lang)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return ContentPage{}, ctx.Err()
		}
	}
	return c.fallback(kind, slug, lang)
}

func (c *Client) fetchRemote(ctx context.Context, kind, slug, lang string) (ContentPage, error) {
	endpoint, err := url.JoinPath(c.baseURL, "content", kind, slug)
	if err != nil {
		return ContentPage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ContentPage{}, err
	}
	q := req.URL.Query()
	q.Set("lang", lang)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ContentPage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ContentPage{}, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return ContentPage{}, fmt.Errorf("cms: content remote status %d", resp.StatusCode)
	}

	var payload struct {
		Lang      string    `json:"lang"`
		Title     string    `json:"title"`
		Summary   string    `json:"summary"`
		Body      string    `json:"body"`
		LinkText  string    `json:"link_text"`
		LinkURL   string    `json:"link_url"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ContentPage{}, err
	}
	if strings.TrimSpace(payload.Body) == "" {
		return ContentPage{}, fmt.Errorf("cms: empty body for %s/%s", kind, slug)
	}
	return ContentPage{
		Kind:      kind,
		Slug:      slug,
		Lang:      firstNonEmpty(payload.Lang, lang),
		Title:     payload.Title,
		Summary:   payload.Summary,
		Body:      payload.Body,
		LinkText:  payload.LinkText,
		LinkURL:   payload.LinkURL,
		UpdatedAt: payload.UpdatedAt,
	}, nil
}

func (c *Client) fallback(kind, slug, lang string) (ContentPage, error) {
	priority := []string{lang}
	if lang != "en" {
		priority = append(priority, "en")
	}
	if lang != "ja" {
		priority = append(priority, "ja")
	}
	for _, candidate := range priority {
		page, err := readContentMarkdown(c.contentDir, kind, slug, candidate)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		// parse errors stop the search
		return ContentPage{}, err
	}
	return ContentPage{}, ErrNotFound
}

func (c *Client) render(body string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	// the policy strips anything unsafe before it reaches templates
	return template.HTML(c.policy.SanitizeBytes(buf.Bytes())), nil
}

func readContentMarkdown(contentDir, kind, slug, lang string) (ContentPage, error) {
	file := filepath.Join(contentDir, kind, lang, slug+".md")
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ContentPage{}, ErrNotFound
		}
		return ContentPage{}, err
	}
	fm, body := splitFrontMatter(string(data))
	front := contentFrontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return ContentPage{}, fmt.Errorf("cms: parse front matter %s: %w", file, err)
		}
	}
	page := ContentPage{
		Kind:      kind,
		Slug:      slug,
		Lang:      firstNonEmpty(strings.TrimSpace(front.Lang), lang),
		Title:     strings.TrimSpace(front.Title),
		Summary:   strings.TrimSpace(front.Summary),
		Body:      body,
		LinkText:  strings.TrimSpace(front.LinkText),
		LinkURL:   strings.TrimSpace(front.LinkURL),
		UpdatedAt: parseContentDate(front.UpdatedAt),
	}
	if page.UpdatedAt.IsZero() {
		if info, err := os.Stat(file); err == nil {
			page.UpdatedAt = info.ModTime()
		}
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	return page, nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func parseContentDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	parts := strings.Split(strings.TrimSpace(slug), "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(part)
		if runes[0] >= 'a' && runes[0] <= 'z' {
			runes[0] -= 'a' - 'A'
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}

func sanitizeSlug(slug string) string {
	slug = strings.TrimSpace(strings.ToLower(slug))
	slug = strings.Trim(slug, "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	return slug
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if base, _, ok := strings.Cut(lang, "-"); ok {
		lang = base
	}
	if lang == "" {
		return "en"
	}
	return lang
}

func (c *Client) cached(key string) (ContentPage, bool) {
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return ContentPage{}, false
	}
	return entry.page, true
}

func (c *Client) store(key string, page ContentPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{page: page, expires: c.now().Add(c.cacheTTL)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
