package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pravnyk/internal/logging"
	"pravnyk/internal/ratelimit"
	"pravnyk/internal/types"
)

// =============================================================================
// COURT-DECISIONS SEARCH API CLIENT
// =============================================================================

// ZakonOnlineClient consumes the court-decision search API. Every outbound
// call passes the shared token bucket first, so concurrent ingest workers
// cannot exceed the contractual request rate.
type ZakonOnlineClient struct {
	baseURL    string
	appToken   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *FetchCache
	maxRetries int
}

// ZakonOnlineOption configures the client.
type ZakonOnlineOption func(*ZakonOnlineClient)

// WithFetchCache attaches a raw-bytes cache for full-text fetches.
func WithFetchCache(cache *FetchCache) ZakonOnlineOption {
	return func(c *ZakonOnlineClient) { c.cache = cache }
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) ZakonOnlineOption {
	return func(c *ZakonOnlineClient) { c.httpClient = hc }
}

// NewZakonOnlineClient creates a client for the given API base URL.
// minInterval is the minimum gap between outbound calls (>= 200ms per the
// API contract; 0 disables limiting for tests).
func NewZakonOnlineClient(baseURL, appToken string, minInterval time.Duration, opts ...ZakonOnlineOption) *ZakonOnlineClient {
	c := &ZakonOnlineClient{
		baseURL:    baseURL,
		appToken:   appToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(minInterval),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WherePredicate is one filter of a search request, rendered as
// where[field][op]=<op>&where[field][value]=<value>.
type WherePredicate struct {
	Field string
	Op    string // "=", "in", "between", "<=", ">="
	Value string
}

// SearchParams composes a filtered search request.
type SearchParams struct {
	Text       string // meta.search full-text term
	Where      []WherePredicate
	Target     string
	DateFrom   string
	DateTo     string
	OrderField string
	OrderDesc  bool
	Select     string
	Limit      int
	Page       int
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	if p.Text != "" {
		q.Set("meta.search", p.Text)
	}
	for _, w := range p.Where {
		q.Set(fmt.Sprintf("where[%s][op]", w.Field), w.Op)
		q.Set(fmt.Sprintf("where[%s][value]", w.Field), w.Value)
	}
	if p.Target != "" {
		q.Set("target", p.Target)
	}
	if p.DateFrom != "" {
		q.Set("date_from", p.DateFrom)
	}
	if p.DateTo != "" {
		q.Set("date_to", p.DateTo)
	}
	if p.OrderField != "" {
		dir := "asc"
		if p.OrderDesc {
			dir = "desc"
		}
		q.Set(fmt.Sprintf("order[%s]", p.OrderField), dir)
	}
	if p.Select != "" {
		q.Set("select", p.Select)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	return q
}

// SearchItem is one raw result row from the search API.
type SearchItem struct {
	ID              json.Number `json:"id"`
	CauseNumber     string      `json:"cause_num"`
	Title           string      `json:"title"`
	AdjudicationDate string     `json:"adjudication_date"`
	CourtName       string      `json:"court_name"`
	ChamberName     string      `json:"chamber_name"`
	JudgmentForm    string      `json:"judgment_form"`
	JusticeKind     string      `json:"justice_kind"`
	CategoryName    string      `json:"category_name"`
	Snippet         string      `json:"snippet"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items []SearchItem `json:"data"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Pages int          `json:"pages"`
}

// FullText is the full-text payload of one decision.
type FullText struct {
	Text       string `json:"text"`
	HTML       string `json:"html"`
	CaseNumber string `json:"cause_num"`
}

// Search runs GET /v1/search with the composed parameters.
func (c *ZakonOnlineClient) Search(ctx context.Context, params SearchParams) (*SearchPage, error) {
	const op = "adapters.ZakonOnline.Search"
	timer := logging.StartTimer(logging.CategoryAdapters, "ZakonOnline.Search")
	defer timer.Stop()

	body, err := c.get(ctx, "/v1/search", params.query())
	if err != nil {
		return nil, err
	}
	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, fmt.Errorf("malformed search response: %w", err))
	}
	logging.Adapters("search returned %d items (page %d of %d)", len(page.Items), page.Page, page.Pages)
	return &page, nil
}

// SearchMeta runs GET /v1/search/meta and returns the raw facet payload.
func (c *ZakonOnlineClient) SearchMeta(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	body, err := c.get(ctx, "/v1/search/meta", params.query())
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetFullText runs GET /v1/document/by/number/{id}, consulting the cache
// first. The cache entry never expires; decisions are immutable once
// published.
func (c *ZakonOnlineClient) GetFullText(ctx context.Context, docID string) (*FullText, error) {
	const op = "adapters.ZakonOnline.GetFullText"
	path := "/v1/document/by/number/" + url.PathEscape(docID)
	fullURL := c.baseURL + path

	if c.cache != nil {
		if body, ok := c.cache.Get(fullURL, 0); ok {
			var ft FullText
			if err := json.Unmarshal(body, &ft); err == nil {
				return &ft, nil
			}
		}
	}

	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	var ft FullText
	if err := json.Unmarshal(body, &ft); err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, fmt.Errorf("malformed document response: %w", err))
	}
	if ft.Text == "" {
		return nil, types.E(types.KindNotFound, op, "document "+docID+" has no text")
	}
	if c.cache != nil {
		if err := c.cache.Put(fullURL, body); err != nil {
			logging.Get(logging.CategoryAdapters).Warn("cache write failed: %v", err)
		}
	}
	return &ft, nil
}

// Normalize converts raw search items into Document rows.
func Normalize(page *SearchPage) []types.Document {
	docs := make([]types.Document, 0, len(page.Items))
	for _, item := range page.Items {
		docs = append(docs, types.Document{
			ExternalID:      item.ID.String(),
			Type:            types.DocCourtDecision,
			Title:           item.Title,
			Date:            item.AdjudicationDate,
			Court:           item.CourtName,
			Chamber:         item.ChamberName,
			CaseNumber:      item.CauseNumber,
			DisputeCategory: item.CategoryName,
			Outcome:         item.JudgmentForm,
		})
	}
	return docs
}

// get performs one rate-limited request with bounded retry on transient
// upstream failures. The limiter is waited on before every attempt, so
// retries also respect the interval.
func (c *ZakonOnlineClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	const op = "adapters.ZakonOnline"
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			logging.Adapters("retrying %s (attempt %d/%d): %v", path, attempt+1, c.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, types.Wrap(types.KindDeadlineExceeded, op, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.Wrap(types.KindDeadlineExceeded, op, err)
		}

		body, status, err := c.doRequest(ctx, path, query)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusNotFound:
			return nil, types.E(types.KindNotFound, op, path+" not found")
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
		case status >= 500:
			lastErr = fmt.Errorf("upstream status %d", status)
		default:
			return nil, types.E(types.KindInvalidArgument, op,
				fmt.Sprintf("upstream rejected request with status %d", status))
		}
	}

	kind := types.KindUnavailable
	if lastErr != nil && lastErr.Error() == "rate limited (429)" {
		kind = types.KindResourceExhausted
	}
	return nil, types.Wrap(kind, op, fmt.Errorf("exhausted %d attempts: %w", c.maxRetries, lastErr))
}

func (c *ZakonOnlineClient) doRequest(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-App-Token", c.appToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
