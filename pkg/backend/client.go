package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
)

const (
	defaultTimeout              = 20 * time.Second
	defaultCompareSource        = "snapshots"
	maxFilteredScrape           = 50
	responseBodyReadLimit int64 = 1024

	pathCompare        = "/compare"
	pathAssets         = "/products/assets"
	pathBrands         = "/products/brands"
	pathGroups         = "/groups"
	pathTags           = "/tags"
	pathSites          = "/sites"
	pathHistory        = "/analytics/history"
	pathScrapeFiltered = "/compare/scrape/filtered"
	pathScrapeAll      = "/compare/scrape/all"
	pathAssetsSync     = "/praktis/assets/sync"
)

var errBaseURLRequired = errors.New("backend base url is required")

// Client talks to the price-intelligence backend. Every call is bounded by the
// configured request timeout on top of the caller's context.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds a backend client rooted at baseURL (e.g. http://backend:8000/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	return client, nil
}

// CompareQuery is the server-side narrowing for GET /compare.
type CompareQuery struct {
	SiteCode   string
	Limit      int
	TagID      string
	Brand      string
	Q          string
	CategoryID *int
}

func (q CompareQuery) values() url.Values {
	v := url.Values{}
	site := strings.TrimSpace(q.SiteCode)
	if site == "" {
		site = "all"
	}
	v.Set("site_code", site)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	v.Set("source", defaultCompareSource)
	if tag := strings.TrimSpace(q.TagID); tag != "" && tag != "all" {
		v.Set("tag_id", tag)
	}
	if brand := strings.TrimSpace(q.Brand); brand != "" {
		v.Set("brand", brand)
	}
	if text := strings.TrimSpace(q.Q); text != "" {
		v.Set("q", text)
	}
	if q.CategoryID != nil {
		v.Set("category_id", strconv.Itoa(*q.CategoryID))
	}
	return v
}

// FetchCompare returns the flat comparison rows.
func (c *Client) FetchCompare(ctx context.Context, q CompareQuery) ([]CompareRow, error) {
	var rows []CompareRow
	if err := c.do(ctx, http.MethodGet, pathCompare, q.values(), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchAssets resolves merchant-site URLs and images for the given SKUs. SKUs
// unknown to the backend come back as empty stubs.
func (c *Client) FetchAssets(ctx context.Context, skus []string) (map[string]Asset, error) {
	wanted := make([]string, 0, len(skus))
	for _, sku := range skus {
		if s := strings.TrimSpace(sku); s != "" {
			wanted = append(wanted, s)
		}
	}
	if len(wanted) == 0 {
		return map[string]Asset{}, nil
	}
	v := url.Values{}
	v.Set("skus", strings.Join(wanted, ","))

	out := map[string]Asset{}
	if err := c.do(ctx, http.MethodGet, pathAssets, v, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchBrands(ctx context.Context) ([]string, error) {
	var brands []string
	if err := c.do(ctx, http.MethodGet, pathBrands, nil, nil, &brands); err != nil {
		return nil, err
	}
	return brands, nil
}

func (c *Client) FetchGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, http.MethodGet, pathGroups, nil, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) FetchTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.do(ctx, http.MethodGet, pathTags, nil, nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (c *Client) FetchSites(ctx context.Context) ([]Site, error) {
	var sites []Site
	if err := c.do(ctx, http.MethodGet, pathSites, nil, nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// Ping reports whether the backend answers a cheap listing call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchSites(ctx)
	return err
}

// FetchHistory returns the per-site snapshot series for one product.
func (c *Client) FetchHistory(ctx context.Context, sku string) (*History, error) {
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required")
	}
	v := url.Values{}
	v.Set("product_sku", trimmed)

	var history History
	if err := c.do(ctx, http.MethodGet, pathHistory, v, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// ScrapeFilter narrows a filtered scrape to what the operator currently sees.
type ScrapeFilter struct {
	SiteCode   string
	Q          string
	TagID      string
	Brand      string
	CategoryID *int
	Limit      int
}

// TriggerFilteredScrape asks the backend to re-scrape at most 50 products of one site.
func (c *Client) TriggerFilteredScrape(ctx context.Context, f ScrapeFilter) (JobResult, error) {
	site := strings.TrimSpace(f.SiteCode)
	if site == "" || site == "all" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a single site is required for a filtered scrape")
	}
	limit := f.Limit
	if limit <= 0 || limit > maxFilteredScrape {
		limit = maxFilteredScrape
	}
	v := CompareQuery{SiteCode: site, TagID: f.TagID, Brand: f.Brand, Q: f.Q, CategoryID: f.CategoryID, Limit: limit}.values()
	v.Del("source")

	result := JobResult{}
	if err := c.do(ctx, http.MethodPost, pathScrapeFiltered, v, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// TriggerScrapeAll starts the mass scrape across every registered site.
func (c *Client) TriggerScrapeAll(ctx context.Context) (JobResult, error) {
	result := JobResult{}
	if err := c.do(ctx, http.MethodPost, pathScrapeAll, nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncAssets refreshes merchant-site URLs and images for the selected SKUs.
func (c *Client) SyncAssets(ctx context.Context, req AssetsSyncRequest) (*AssetsSyncResult, error) {
	var result AssetsSyncResult
	if err := c.do(ctx, http.MethodPost, pathAssetsSync, nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.buildURL(path, query)
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal backend request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build backend request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(reqCtx, err) {
			return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "backend request timed out").
				WithDetails(map[string]any{"endpoint": path})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute backend request").
			WithDetails(map[string]any{"endpoint": path})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "backend request failed").
			WithDetails(map[string]any{"endpoint": path, "status": resp.StatusCode})
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if isTimeout(reqCtx, err) {
			return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "backend response timed out").
				WithDetails(map[string]any{"endpoint": path})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backend response").
			WithDetails(map[string]any{"endpoint": path})
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
