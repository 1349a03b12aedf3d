// Package pubmed is a rate-limited client for the NCBI eUtils API, backed
// by a local search and record cache.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medbrief/newsroom/internal/record"
)

const (
	// BaseURL is the NCBI eUtils API base URL.
	BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

	// DefaultTool identifies this application to NCBI.
	DefaultTool = "newsroom"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL is how long a cached search result stays fresh.
	DefaultCacheTTL = 6 * time.Hour

	// DefaultRetmax is the default number of PMIDs per search.
	DefaultRetmax = 25

	// DefaultBatchSize is the number of records per efetch request.
	DefaultBatchSize = 100

	// NCBI allows 3 requests per second without an API key and roughly 9
	// with one.
	intervalWithoutKey = time.Second / 3
	intervalWithKey    = 110 * time.Millisecond
)

// Store is the slice of the storage layer the client caches through.
type Store interface {
	CachedSearch(ctx context.Context, term string, retmax int, maxAge time.Duration) ([]string, bool, error)
	SaveSearch(ctx context.Context, term string, retmax int, pmids []string) error
	GetRecords(ctx context.Context, pmids []string) (map[string]record.Record, error)
	UpsertRecords(ctx context.Context, records []record.Record) error
}

// Client is a rate-limited HTTP client for the eUtils API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	store      Store
	filter     Filter
	baseURL    string
	tool       string
	email      string
	apiKey     string
	cacheTTL   time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the NCBI API key, which raises the allowed request rate.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithStore attaches the search and record cache.
func WithStore(store Store) ClientOption {
	return func(c *Client) {
		c.store = store
	}
}

// WithFilter replaces the built-in publication-type filter.
func WithFilter(f Filter) ClientOption {
	return func(c *Client) {
		c.filter = f
	}
}

// WithCacheTTL overrides the search cache freshness window. A negative TTL
// never expires.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithTool overrides the tool name reported to NCBI.
func WithTool(tool string) ClientOption {
	return func(c *Client) {
		c.tool = tool
	}
}

// NewClient creates an eUtils client. The email is required by NCBI's usage
// policy and is sent with every request.
func NewClient(email string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		filter:     DefaultFilter(),
		baseURL:    BaseURL,
		tool:       DefaultTool,
		email:      email,
		cacheTTL:   DefaultCacheTTL,
	}

	// Check for API key in environment
	if key := os.Getenv("PUBMED_API_KEY"); key != "" {
		c.apiKey = key
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	interval := intervalWithoutKey
	if c.apiKey != "" {
		interval = intervalWithKey
	}
	c.limiter = rate.NewLimiter(rate.Every(interval), 1)

	return c
}

// get performs a throttled eUtils request and returns the response body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params.Set("tool", c.tool)
	params.Set("email", c.email)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// SearchPrimaryResearch searches PubMed for primary research matching the
// term and returns the PMIDs. Results are served from the local cache when
// an identical search ran within the cache TTL; fresh results are logged to
// the query history.
func (c *Client) SearchPrimaryResearch(ctx context.Context, term string, retmax int) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if retmax <= 0 {
		retmax = DefaultRetmax
	}

	if c.store != nil {
		pmids, ok, err := c.store.CachedSearch(ctx, term, retmax, c.cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("search cache lookup: %w", err)
		}
		if ok {
			return pmids, nil
		}
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", c.filter.Query(term))
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing esearch result: %v", ErrInvalidResponse, err)
	}

	pmids := result.ESearchResult.IDList
	if c.store != nil {
		if err := c.store.SaveSearch(ctx, term, retmax, pmids); err != nil {
			return nil, fmt.Errorf("logging search: %w", err)
		}
	}
	return pmids, nil
}

// Require names the record fields a fetch must return. The zero value
// requires nothing.
type Require struct {
	Title    bool
	Abstract bool
	Journal  bool
	Year     bool
}

// RequireFull demands every field the curation flows need.
func RequireFull() Require {
	return Require{Title: true, Abstract: true, Journal: true, Year: true}
}

func (r Require) missing(rec record.Record) bool {
	if r.Title && strings.TrimSpace(rec.Title) == "" {
		return true
	}
	if r.Abstract && strings.TrimSpace(rec.Abstract) == "" {
		return true
	}
	if r.Journal && strings.TrimSpace(rec.Journal) == "" {
		return true
	}
	if r.Year && strings.TrimSpace(rec.Year) == "" {
		return true
	}
	return false
}

// FetchOptions tunes a FetchRecords call.
type FetchOptions struct {
	// Require filters out records missing the named fields.
	Require Require
	// ForceRefresh bypasses the record cache and refetches everything.
	// Needed to recover the publication date triple, which cached rows do
	// not carry.
	ForceRefresh bool
	// BatchSize caps the records per efetch request. Defaults to
	// DefaultBatchSize.
	BatchSize int
}

// FetchRecords fetches article records for the given PMIDs, serving from the
// record cache where possible. Results preserve the input PMID order;
// records missing a required field are dropped.
func (c *Client) FetchRecords(ctx context.Context, pmids []string, opts FetchOptions) ([]record.Record, error) {
	if len(pmids) == 0 {
		return nil, nil
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	cached := map[string]record.Record{}
	if c.store != nil && !opts.ForceRefresh {
		var err error
		cached, err = c.store.GetRecords(ctx, pmids)
		if err != nil {
			return nil, fmt.Errorf("cached records: %w", err)
		}
	}

	var missing []string
	if opts.ForceRefresh {
		missing = append(missing, pmids...)
	} else {
		for _, pmid := range pmids {
			if rec, ok := cached[pmid]; ok && !opts.Require.missing(rec) {
				continue
			}
			missing = append(missing, pmid)
		}
	}

	fetched := map[string]record.Record{}
	for start := 0; start < len(missing); start += batch {
		end := start + batch
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]

		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(chunk, ","))
		params.Set("retmode", "xml")

		body, err := c.get(ctx, "efetch.fcgi", params)
		if err != nil {
			return nil, err
		}
		records, err := parseArticleSet(body, opts.Require)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.PMID != "" {
				fetched[rec.PMID] = rec
			}
		}
	}

	if c.store != nil && len(fetched) > 0 {
		records := make([]record.Record, 0, len(fetched))
		for _, rec := range fetched {
			records = append(records, rec)
		}
		if err := c.store.UpsertRecords(ctx, records); err != nil {
			return nil, fmt.Errorf("caching records: %w", err)
		}
	}

	var results []record.Record
	for _, pmid := range pmids {
		rec, ok := fetched[pmid]
		if !ok {
			rec, ok = cached[pmid]
		}
		if ok && !opts.Require.missing(rec) {
			results = append(results, rec)
		}
	}
	return results, nil
}
