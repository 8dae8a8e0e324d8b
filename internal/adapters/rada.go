package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"pravnyk/internal/logging"
	"pravnyk/internal/ratelimit"
	"pravnyk/internal/types"
)

// =============================================================================
// LEGISLATION SCRAPER
// =============================================================================

// Chunk sizes for legislation articles. Statute provisions are short and
// dense, so the windows are smaller than for court decisions.
const (
	ArticleChunkSize    = 500
	ArticleChunkOverlap = 100
)

// articleAnchorRe is the primary recognizer: the print view of
// zakon.rada.gov.ua marks article headings with a span of class rvts9.
var articleAnchorRe = regexp.MustCompile(
	`<span class="rvts9">\s*Стаття\s+([0-9]+(?:[-‑][0-9а-яА-ЯіІїЇєЄ]+)?)\s*\.?\s*</span>`)

// articleTextRe is the fallback recognizer over plain text, for pages that
// do not follow the span convention.
var articleTextRe = regexp.MustCompile(
	`(?m)^\s*Стаття\s+([0-9]+(?:[-‑][0-9а-яА-ЯіІїЇєЄ]+)?)\s*\.`)

// RadaClient fetches and parses legislation acts from the public print
// endpoint.
type RadaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *FetchCache
}

// RadaOption configures the client.
type RadaOption func(*RadaClient)

// WithRadaCache attaches a fetch cache. Acts change rarely; cached pages
// are honored for 24 hours.
func WithRadaCache(cache *FetchCache) RadaOption {
	return func(c *RadaClient) { c.cache = cache }
}

// WithRadaHTTPClient overrides the transport, mainly for tests.
func WithRadaHTTPClient(hc *http.Client) RadaOption {
	return func(c *RadaClient) { c.httpClient = hc }
}

// NewRadaClient creates a legislation client.
func NewRadaClient(baseURL string, minInterval time.Duration, opts ...RadaOption) *RadaClient {
	if baseURL == "" {
		baseURL = "https://zakon.rada.gov.ua"
	}
	c := &RadaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    ratelimit.New(minInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads the print view of an act and parses its articles.
func (c *RadaClient) Fetch(ctx context.Context, actID string) (*types.LegislationAct, []types.LegislationArticle, error) {
	const op = "adapters.Rada.Fetch"
	timer := logging.StartTimer(logging.CategoryAdapters, "Rada.Fetch")
	defer timer.Stop()

	pageURL := c.baseURL + "/laws/show/" + actID + "/print"

	var body []byte
	if c.cache != nil {
		if cached, ok := c.cache.Get(pageURL, 24*time.Hour); ok {
			body = cached
		}
	}
	if body == nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, types.Wrap(types.KindDeadlineExceeded, op, err)
		}
		var err error
		body, err = c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, nil, err
		}
		if c.cache != nil {
			if err := c.cache.Put(pageURL, body); err != nil {
				logging.Get(logging.CategoryAdapters).Warn("cache write failed: %v", err)
			}
		}
	}

	page := string(body)
	act := &types.LegislationAct{
		Code:   actID,
		Type:   classifyAct(page),
		Title:  extractTitle(page),
		URL:    pageURL,
		Status: "active",
	}

	articles := parseArticles(page)
	if len(articles) == 0 {
		return nil, nil, types.E(types.KindNotFound, op,
			"no articles recognized in act "+actID)
	}
	logging.Adapters("parsed %d articles from act %s", len(articles), actID)
	return act, articles, nil
}

func (c *RadaClient) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	const op = "adapters.Rada.Fetch"
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "pravnyk/1.0 legal research")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.E(types.KindNotFound, op, pageURL+" not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.Wrap(types.KindUnavailable, op,
			fmt.Errorf("upstream status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	return body, nil
}

// =============================================================================
// ARTICLE PARSING
// =============================================================================

// parseArticles tries the span recognizer first, then the plain-text
// fallback over the stripped page.
func parseArticles(page string) []types.LegislationArticle {
	if arts := parseBySpans(page); len(arts) > 0 {
		return arts
	}
	return parseByText(stripHTML(page))
}

// parseBySpans splits the raw HTML at rvts9 article anchors. Each article's
// body is the stripped text between its anchor and the next.
func parseBySpans(page string) []types.LegislationArticle {
	matches := articleAnchorRe.FindAllStringSubmatchIndex(page, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []types.LegislationArticle
	for i, m := range matches {
		number := page[m[2]:m[3]]
		bodyStart := m[1]
		bodyEnd := len(page)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		htmlBody := page[m[0]:bodyEnd]
		text := strings.TrimSpace(stripHTML(page[bodyStart:bodyEnd]))
		if text == "" {
			continue
		}
		out = append(out, types.LegislationArticle{
			ArticleNumber: number,
			Title:         firstLine(text),
			Text:          text,
			HTML:          htmlBody,
			ByteSize:      len(text),
		})
	}
	return out
}

// parseByText recognizes "Стаття N." headings in stripped text.
func parseByText(text string) []types.LegislationArticle {
	matches := articleTextRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []types.LegislationArticle
	for i, m := range matches {
		number := text[m[2]:m[3]]
		bodyStart := m[1]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := strings.TrimSpace(text[bodyStart:bodyEnd])
		if body == "" {
			continue
		}
		out = append(out, types.LegislationArticle{
			ArticleNumber: number,
			Title:         firstLine(body),
			Text:          body,
			ByteSize:      len(body),
		})
	}
	return out
}

// stripHTML renders an HTML fragment to its visible text.
func stripHTML(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)
	return sb.String()
}

func extractTitle(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title
}

func classifyAct(page string) types.ActType {
	lower := strings.ToLower(page)
	switch {
	case strings.Contains(lower, "кодекс"):
		return types.ActCode
	case strings.Contains(lower, "закон україни"):
		return types.ActLaw
	}
	return types.ActRegulation
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i > 0 {
		return strings.TrimSpace(text[:i])
	}
	if len(text) > 120 {
		return strings.TrimSpace(text[:120])
	}
	return text
}

// =============================================================================
// ARTICLE CHUNKING
// =============================================================================

// CreateArticleChunks splits an article's text into overlapping windows
// for vector indexing. Windows end on whitespace where possible.
func CreateArticleChunks(article *types.LegislationArticle) []string {
	text := strings.TrimSpace(article.Text)
	if text == "" {
		return nil
	}
	if len(text) <= ArticleChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + ArticleChunkSize
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}
		// Pull back to whitespace so a word is never split.
		cut := end
		for cut > start+ArticleChunkSize/2 && text[cut-1] != ' ' && text[cut-1] != '\n' {
			cut--
		}
		if cut <= start+ArticleChunkSize/2 {
			cut = end
		}
		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := cut - ArticleChunkOverlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
