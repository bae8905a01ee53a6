package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: rt})}, opts...)
	client, err := NewClient("http://backend.test/api/", opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestFetchCompareBuildsQueryAndDecodesTolerantRows(t *testing.T) {
	respBody := `[
		{"product_sku":"A","product_name":"Drill","product_brand":"Bosch",
		 "product_tags":[{"id":7,"name":"promo"}],"product_group_ids":["5",7,"x"],
		 "product_price_regular":"12,50","product_price_promo":null,
		 "competitor_site":"Praktiker.BG","competitor_sku":10045,
		 "competitor_price_regular":11.9,"competitor_price_promo":"N/A"}
	]`

	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, respBody), nil
	})

	rows, err := client.FetchCompare(context.Background(), CompareQuery{SiteCode: "all", Limit: 2000, TagID: "7"})
	if err != nil {
		t.Fatalf("fetch compare: %v", err)
	}

	if captured.Method != http.MethodGet || captured.URL.Path != "/api/compare" {
		t.Fatalf("unexpected request %s %s", captured.Method, captured.URL.Path)
	}
	q := captured.URL.Query()
	if q.Get("site_code") != "all" || q.Get("limit") != "2000" || q.Get("tag_id") != "7" || q.Get("source") != "snapshots" {
		t.Fatalf("unexpected query %s", captured.URL.RawQuery)
	}
	if q.Has("brand") || q.Has("q") || q.Has("category_id") {
		t.Fatalf("empty filters must not be sent: %s", captured.URL.RawQuery)
	}

	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.ProductSKU != "A" || row.CompetitorSKU != "10045" {
		t.Fatalf("unexpected skus %q %q", row.ProductSKU, row.CompetitorSKU)
	}
	if len(row.ProductTags) != 1 || row.ProductTags[0].ID != "7" {
		t.Fatalf("unexpected tags %+v", row.ProductTags)
	}
	if len(row.ProductGroupIDs) != 2 || row.ProductGroupIDs[0] != 5 || row.ProductGroupIDs[1] != 7 {
		t.Fatalf("unexpected group ids %v", row.ProductGroupIDs)
	}
	if row.ProductPriceRegular != "12,50" {
		t.Fatalf("string price should stay raw, got %#v", row.ProductPriceRegular)
	}
	if n, ok := row.CompetitorPriceRegular.(json.Number); !ok || n.String() != "11.9" {
		t.Fatalf("numeric price should decode as json.Number, got %#v", row.CompetitorPriceRegular)
	}
	if row.ProductPricePromo != nil {
		t.Fatalf("null promo should stay nil")
	}
}

func TestFetchCompareNon2xxIsDependencyError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"detail":"db down"}`), nil
	})

	_, err := client.FetchCompare(context.Background(), CompareQuery{SiteCode: "all"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !typed.Retryable() {
		t.Fatalf("dependency errors must be retryable")
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %#v", typed.Details())
	}
	if details["endpoint"] != "/compare" || details["status"] != http.StatusBadGateway {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestRequestTimeoutIsRetryableTimeout(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}, WithTimeout(10*time.Millisecond))

	_, err := client.FetchBrands(context.Background())
	if !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !pkgerrors.As(err).Retryable() {
		t.Fatalf("timeout must be retryable")
	}
}

func TestFetchAssetsSkipsEmptyInput(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	assets, err := client.FetchAssets(context.Background(), []string{" ", ""})
	if err != nil {
		t.Fatalf("fetch assets: %v", err)
	}
	if len(assets) != 0 || calls != 0 {
		t.Fatalf("expected no request for empty skus, calls=%d", calls)
	}
}

func TestFetchAssetsJoinsSKUs(t *testing.T) {
	var rawSKUs string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		rawSKUs = req.URL.Query().Get("skus")
		return jsonResponse(http.StatusOK, `{"A":{"product_url":"https://praktis.bg/a","image_url":"https://cdn/a.jpg"},"B":{"product_url":null,"image_url":null}}`), nil
	})

	assets, err := client.FetchAssets(context.Background(), []string{"A", " B "})
	if err != nil {
		t.Fatalf("fetch assets: %v", err)
	}
	if rawSKUs != "A,B" {
		t.Fatalf("unexpected skus param %q", rawSKUs)
	}
	if assets["A"].ProductURL != "https://praktis.bg/a" {
		t.Fatalf("unexpected asset %+v", assets["A"])
	}
	if b, ok := assets["B"]; !ok || b.ProductURL != "" {
		t.Fatalf("expected empty stub for B, got %+v ok=%v", b, ok)
	}
}

func TestTriggerFilteredScrapeCapsLimit(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"scraped":12}`), nil
	})

	result, err := client.TriggerFilteredScrape(context.Background(), ScrapeFilter{SiteCode: "praktiker", Limit: 500, Brand: "Bosch"})
	if err != nil {
		t.Fatalf("filtered scrape: %v", err)
	}
	if captured.Method != http.MethodPost || captured.URL.Path != "/api/compare/scrape/filtered" {
		t.Fatalf("unexpected request %s %s", captured.Method, captured.URL.Path)
	}
	if captured.URL.Query().Get("limit") != "50" || captured.URL.Query().Get("brand") != "Bosch" {
		t.Fatalf("unexpected query %s", captured.URL.RawQuery)
	}
	if captured.URL.Query().Has("source") {
		t.Fatalf("scrape request should not carry source")
	}
	if result["scraped"] != json.Number("12") {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestTriggerFilteredScrapeRequiresSingleSite(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := client.TriggerFilteredScrape(context.Background(), ScrapeFilter{SiteCode: "all"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSyncAssetsPostsJSON(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("missing content type")
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["limit"] != float64(25) {
			t.Fatalf("unexpected payload %#v", payload)
		}
		if _, ok := payload["skus"]; ok {
			t.Fatalf("empty skus should be omitted")
		}
		return jsonResponse(http.StatusOK, `{"checked":25,"updated":20,"skipped":4,"errors":1}`), nil
	})

	result, err := client.SyncAssets(context.Background(), AssetsSyncRequest{Limit: 25})
	if err != nil {
		t.Fatalf("sync assets: %v", err)
	}
	if result.Checked != 25 || result.Errors != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFetchHistoryKeepsTimestampText(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("product_sku") != "A" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{"product_sku":"A","product_name":"Drill","series":[{"site_code":"praktiker","site_name":"Praktiker","points":[{"ts":"2024-05-01T10:00:00","regular_price":12.5,"promo_price":null,"label":"Offer"}]}]}`), nil
	})

	history, err := client.FetchHistory(context.Background(), "A")
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(history.Series) != 1 || len(history.Series[0].Points) != 1 {
		t.Fatalf("unexpected history %+v", history)
	}
	if history.Series[0].Points[0].Ts != "2024-05-01T10:00:00" {
		t.Fatalf("unexpected ts %q", history.Series[0].Points[0].Ts)
	}
}

func TestPingUsesSitesListing(t *testing.T) {
	var path string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		path = req.URL.Path
		return jsonResponse(http.StatusOK, `[{"id":1,"code":"praktiker","name":"Praktiker"}]`), nil
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if path != "/api/sites" {
		t.Fatalf("unexpected ping path %s", path)
	}

	down := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, `{"detail":"down"}`), nil
	})
	if err := down.Ping(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestFetchImageDetectsExtension(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "https://cdn.praktis.bg/a.png" {
			t.Fatalf("unexpected image url %s", req.URL)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("png-bytes")),
			Header:     http.Header{"Content-Type": []string{"image/png; charset=binary"}},
		}, nil
	})

	data, ext, err := client.FetchImage(context.Background(), " https://cdn.praktis.bg/a.png ")
	if err != nil {
		t.Fatalf("fetch image: %v", err)
	}
	if ext != ".png" || string(data) != "png-bytes" {
		t.Fatalf("unexpected image %q %q", ext, data)
	}
}

func TestFetchImageRejectsUnsupportedType(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("<svg/>")),
			Header:     http.Header{"Content-Type": []string{"image/svg+xml"}},
		}, nil
	})
	if _, _, err := client.FetchImage(context.Background(), "https://cdn.praktis.bg/a.svg"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, _, err := client.FetchImage(context.Background(), "/relative.png"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
