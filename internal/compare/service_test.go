package compare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praktis/pricecompare/pkg/backend"
	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
	"github.com/praktis/pricecompare/pkg/logger"
)

type fakeBackend struct {
	mu      sync.Mutex
	rows    map[string][]backend.CompareRow
	err     error
	calls   []backend.CompareQuery
	block   map[string]chan struct{}
	started chan string
	history *backend.History
	scrapes []backend.ScrapeFilter
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: map[string][]backend.CompareRow{}, block: map[string]chan struct{}{}}
}

func (f *fakeBackend) FetchCompare(ctx context.Context, q backend.CompareQuery) ([]backend.CompareRow, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	wait := f.block[q.SiteCode]
	rows := f.rows[q.SiteCode]
	err := f.err
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- q.SiteCode
	}
	if wait != nil {
		<-wait
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeBackend) FetchHistory(ctx context.Context, sku string) (*backend.History, error) {
	return f.history, nil
}

func (f *fakeBackend) TriggerFilteredScrape(ctx context.Context, sf backend.ScrapeFilter) (backend.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapes = append(f.scrapes, sf)
	return backend.JobResult{"scraped": sf.Limit}, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fnAssets func(ctx context.Context, skus []string) (map[string]backend.Asset, error)

func (fn fnAssets) FetchAssets(ctx context.Context, skus []string) (map[string]backend.Asset, error) {
	return fn(ctx, skus)
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	failures  []string
	stale     int
	fallbacks []string
}

func (o *recordingObserver) ObserveLoad(view, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, view+":"+outcome)
}

func (o *recordingObserver) IncFetchFailure(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, code)
}

func (o *recordingObserver) IncStaleLoad() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *recordingObserver) IncFallback(source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, source)
}

type stubCategories map[int]map[int]struct{}

func (s stubCategories) Descendants(_ context.Context, id int) (map[int]struct{}, error) {
	if ids, ok := s[id]; ok {
		return ids, nil
	}
	return map[int]struct{}{id: {}}, nil
}

func wireRow(sku, site string, our, comp any) backend.CompareRow {
	return backend.CompareRow{
		ProductSKU:             backend.FlexString(sku),
		ProductName:            "Product " + sku,
		CompetitorSite:         site,
		ProductPriceRegular:    our,
		CompetitorPriceRegular: comp,
	}
}

func manyProducts(n int) []backend.CompareRow {
	rows := make([]backend.CompareRow, 0, n*2)
	for i := 0; i < n; i++ {
		sku := fmt.Sprintf("SKU-%03d", i)
		rows = append(rows, wireRow(sku, "praktiker", 10.0, 11.0), wireRow(sku, "mrbricolage", 10.0, "9,50"))
	}
	return rows
}

func noAssets() fnAssets {
	return func(context.Context, []string) (map[string]backend.Asset, error) {
		return map[string]backend.Asset{}, nil
	}
}

type serviceFixture struct {
	svc      *Service
	backend  *fakeBackend
	observer *recordingObserver
}

func newFixture(t *testing.T, assets AssetSource, mutate func(*ServiceParams)) serviceFixture {
	t.Helper()
	be := newFakeBackend()
	obs := &recordingObserver{}
	params := ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Backend:  be,
		Assets:   NewAssetResolver(assets, 50, 2),
		Observer: obs,
		Options: Options{
			CompareLimit:    2000,
			DefaultPageSize: 50,
			MaxPageSize:     2000,
			MerchantDomain:  "https://praktis.bg",
			FallbackToCache: true,
		},
	}
	if mutate != nil {
		mutate(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return serviceFixture{svc: svc, backend: be, observer: obs}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestLoadRefetchesOnlyWhenFingerprintChanges(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["all"] = manyProducts(3)
	sess := NewSession("v")
	ctx := context.Background()

	page, err := fx.svc.Load(ctx, sess, Request{Site: "all"})
	require.NoError(t, err)
	assert.True(t, page.Refetched)
	assert.Equal(t, 3, page.Total)

	page, err = fx.svc.Load(ctx, sess, Request{Site: "all", Filters: Filters{Query: "sku-001", Brand: "x", PriceStatus: StatusOursHigher}})
	require.NoError(t, err)
	assert.False(t, page.Refetched)
	assert.Equal(t, 1, fx.backend.callCount(), "lighter filters reuse the fetched rows")

	_, err = fx.svc.Load(ctx, sess, Request{Site: "all", Filters: Filters{TagID: "3"}})
	require.NoError(t, err)
	assert.Equal(t, 2, fx.backend.callCount())

	_, err = fx.svc.Load(ctx, sess, Request{Site: "all", Filters: Filters{TagID: "3"}, Reload: true})
	require.NoError(t, err)
	assert.Equal(t, 3, fx.backend.callCount())

	last := fx.backend.calls[2]
	assert.Equal(t, backend.CompareQuery{SiteCode: "all", Limit: 2000, TagID: "3"}, last)
	assert.Equal(t, []string{"all:ok", "all:ok", "all:ok", "all:ok"}, fx.observer.outcomes)
}

func TestLoadPaginatesTheFilteredSet(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["all"] = manyProducts(123)

	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all", Page: 5, PageSize: 50})
	require.NoError(t, err)

	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 123, page.Total)
	assert.Len(t, page.Rows, 23)
	assert.Equal(t, "Page 3 / 3 (rows: 23 of 123)", page.Info)
	assert.Equal(t, "SKU-100", page.Rows[0].SKU)

	require.Len(t, page.Columns, 4)
	assert.Equal(t, OurColumn, page.Columns[0].Code)
	cells := page.Rows[0].Cells
	assert.Equal(t, Higher, cells[0].Classification)
	assert.Equal(t, Higher, cells[1].Classification)
	assert.Equal(t, Cheapest, cells[2].Classification)
	assert.Equal(t, "9.50", cells[2].Display)
	assert.Equal(t, Neutral, cells[3].Classification)
	assert.Equal(t, "N/A", cells[3].Display)
}

func TestLoadEmptyResultIsNotAnError(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Empty(t, page.Rows)
}

func TestPresenceFilterResolvesTheWholeSet(t *testing.T) {
	var (
		mu        sync.Mutex
		requested int
	)
	assets := fnAssets(func(_ context.Context, skus []string) (map[string]backend.Asset, error) {
		mu.Lock()
		requested += len(skus)
		mu.Unlock()
		out := map[string]backend.Asset{}
		for _, s := range skus {
			var n int
			fmt.Sscanf(s, "SKU-%d", &n)
			if n%2 == 0 {
				out[s] = backend.Asset{ProductURL: "https://praktis.bg/p/" + s}
			} else {
				out[s] = backend.Asset{ProductURL: "https://praktis.bg/"}
			}
		}
		return out, nil
	})
	fx := newFixture(t, assets, nil)
	fx.backend.rows["all"] = manyProducts(120)

	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{
		Site:     "all",
		Filters:  Filters{Presence: PresencePresent},
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, 60, page.Total)
	assert.Equal(t, 6, page.TotalPages)
	require.Len(t, page.Rows, 10)
	assert.Equal(t, "SKU-020", page.Rows[0].SKU)
	assert.True(t, page.Rows[0].Present)
	assert.Equal(t, "https://praktis.bg/p/SKU-020", page.Rows[0].ProductURL)
	assert.Equal(t, 120, requested, "every filtered sku is resolved once, pages reuse the result")
}

func TestPresenceLookupFailureFailsTheLoad(t *testing.T) {
	assets := fnAssets(func(context.Context, []string) (map[string]backend.Asset, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "assets down")
	})
	fx := newFixture(t, assets, nil)
	fx.backend.rows["all"] = manyProducts(2)

	_, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all", Filters: Filters{Presence: PresenceMissing}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestPageEnrichmentFailureDegradesToNoAssets(t *testing.T) {
	assets := fnAssets(func(context.Context, []string) (map[string]backend.Asset, error) {
		return nil, errors.New("assets down")
	})
	fx := newFixture(t, assets, nil)
	fx.backend.rows["all"] = manyProducts(2)

	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all"})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Empty(t, page.Rows[0].ProductURL)
}

func TestOverlappingLoadDiscardsTheOlderOne(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["all"] = manyProducts(5)
	fx.backend.rows["praktiker"] = []backend.CompareRow{wireRow("P", "praktiker", 5.0, 6.0)}
	release := make(chan struct{})
	fx.backend.block["all"] = release
	fx.backend.started = make(chan string, 2)

	sess := NewSession("v")
	type result struct {
		page *Page
		err  error
	}
	first := make(chan result, 1)
	go func() {
		page, err := fx.svc.Load(context.Background(), sess, Request{Site: "all"})
		first <- result{page, err}
	}()
	require.Equal(t, "all", <-fx.backend.started)

	second, err := fx.svc.Load(context.Background(), sess, Request{Site: "praktiker"})
	require.NoError(t, err)
	<-fx.backend.started
	assert.Equal(t, 1, second.Total)

	close(release)
	res := <-first
	require.Error(t, res.err)
	assert.True(t, pkgerrors.IsCode(res.err, pkgerrors.CodeStaleLoad))
	assert.Nil(t, res.page)

	rows, fp, _ := sess.Rows()
	assert.Equal(t, "praktiker", fp.Site, "stale rows never replace newer ones")
	assert.Len(t, rows, 1)
	assert.Equal(t, second.Seq, sess.Committed())
	assert.Equal(t, 1, fx.observer.stale)
}

func TestFetchFailureFallsBackToSessionRows(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["all"] = manyProducts(4)
	sess := NewSession("v")

	_, err := fx.svc.Load(context.Background(), sess, Request{Site: "all"})
	require.NoError(t, err)

	fx.backend.setErr(pkgerrors.New(pkgerrors.CodeTimeout, "backend request timed out"))
	page, err := fx.svc.Load(context.Background(), sess, Request{Site: "all", Reload: true})
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	assert.Contains(t, page.Warning, "price backend timed out")
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, []string{"session"}, fx.observer.fallbacks)
	assert.Equal(t, []string{string(pkgerrors.CodeTimeout)}, fx.observer.failures)
	assert.Equal(t, "all:degraded", fx.observer.outcomes[1])
}

func TestFetchFailureFallsBackToRowCache(t *testing.T) {
	store := newMemoryRowStore()
	cache := NewRedisRowCache(store, time.Hour)
	fp := NewFingerprint("all", "")
	require.NoError(t, cache.Save(context.Background(), fp, FromWire(manyProducts(2))))

	fx := newFixture(t, noAssets(), func(p *ServiceParams) { p.Cache = cache })
	fx.backend.setErr(pkgerrors.New(pkgerrors.CodeDependency, "backend request failed"))

	sess := NewSession("v")
	page, err := fx.svc.Load(context.Background(), sess, Request{Site: "all"})
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"redis"}, fx.observer.fallbacks)
	assert.True(t, sess.NeedsRefetch(fp, false), "fallback rows are not adopted, the next load retries")
}

func TestSuccessfulFetchIsWrittenToRowCache(t *testing.T) {
	store := newMemoryRowStore()
	fx := newFixture(t, noAssets(), func(p *ServiceParams) { p.Cache = NewRedisRowCache(store, time.Hour) })
	fx.backend.rows["praktiker"] = []backend.CompareRow{wireRow("P", "praktiker", 5.0, 6.0)}

	_, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "praktiker", Filters: Filters{TagID: "9"}})
	require.NoError(t, err)
	assert.Contains(t, store.data, "pc:rows:praktiker:9")
}

func TestFetchFailureWithoutFallback(t *testing.T) {
	fx := newFixture(t, noAssets(), func(p *ServiceParams) { p.Options.FallbackToCache = false })
	fx.backend.rows["all"] = manyProducts(1)
	sess := NewSession("v")
	_, err := fx.svc.Load(context.Background(), sess, Request{Site: "all"})
	require.NoError(t, err)

	fx.backend.setErr(pkgerrors.New(pkgerrors.CodeDependency, "backend request failed"))
	_, err = fx.svc.Load(context.Background(), sess, Request{Site: "all", Reload: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, "all:error", fx.observer.outcomes[1])
}

func TestSingleSiteView(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	r := wireRow("A", "praktiker.bg", "10,00", 9.0)
	r.CompetitorSKU = "PK-1"
	r.ProductBarcode = "380001"
	fx.backend.rows["praktiker"] = []backend.CompareRow{r, wireRow("", "praktiker", 1.0, 1.0), wireRow("B", "praktiker", 3.0, 4.0)}

	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "praktiker", Filters: Filters{Query: "38000"}})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, []Column{{Code: OurColumn, Label: "Praktis"}, {Code: CodePraktiker, Label: "Praktiker"}}, page.Columns)
	assert.Equal(t, "PK-1", page.Rows[0].CompetitorSKU)
	assert.Equal(t, StatusOursHigher, page.Rows[0].Status)
	assert.Equal(t, Higher, page.Rows[0].Cells[0].Classification)
	assert.Equal(t, Cheapest, page.Rows[0].Cells[1].Classification)
	assert.Equal(t, []string{"single:ok"}, fx.observer.outcomes)
}

func TestCategoryFilterExpandsSubtree(t *testing.T) {
	fx := newFixture(t, noAssets(), func(p *ServiceParams) {
		p.Categories = stubCategories{5: {5: {}, 6: {}, 7: {}}}
	})
	in := wireRow("A", "praktiker", 1.0, 2.0)
	in.ProductGroupIDs = []int{7}
	out := wireRow("B", "praktiker", 1.0, 2.0)
	out.ProductGroupIDs = []int{8}
	fx.backend.rows["all"] = []backend.CompareRow{in, out}

	category := 5
	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all", CategoryID: &category})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "A", page.Rows[0].SKU)
}

func TestConfiguredColumnsApplyWhenRequestHasNone(t *testing.T) {
	fx := newFixture(t, noAssets(), func(p *ServiceParams) { p.Options.Columns = []string{"mashinibg"} })
	fx.backend.rows["all"] = manyProducts(1)

	page, err := fx.svc.Load(context.Background(), NewSession("v"), Request{Site: "all"})
	require.NoError(t, err)
	assert.Equal(t, []Column{{Code: OurColumn, Label: "Praktis"}, {Code: CodeMashiniBG, Label: "OnlineMashini"}}, page.Columns)

	page, err = fx.svc.Load(context.Background(), NewSession("v2"), Request{Site: "all", Filters: Filters{Columns: []string{"mrbricolage", "praktiker"}}})
	require.NoError(t, err)
	assert.Equal(t, CodeMrBricolage, page.Columns[1].Code)
	assert.Equal(t, CodePraktiker, page.Columns[2].Code)
}

func TestExportUsesFullSetWithoutAdvancingSequence(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["all"] = manyProducts(75)
	sess := NewSession("v")

	page, err := fx.svc.Load(context.Background(), sess, Request{Site: "all", PageSize: 10})
	require.NoError(t, err)

	table, err := fx.svc.Export(context.Background(), sess, Request{Site: "all", PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 75)
	assert.True(t, sess.IsLatest(page.Seq))
	assert.Equal(t, 1, fx.backend.callCount(), "export reuses the session rows")

	_, err = fx.svc.Export(context.Background(), sess, Request{Site: "mashinibg"})
	require.NoError(t, err)
	assert.Equal(t, 2, fx.backend.callCount())
	_, fp, _ := sess.Rows()
	assert.Equal(t, "all", fp.Site, "export never replaces the session rows")
}

func TestExportCarriesMerchantAssetsLikeLoad(t *testing.T) {
	assets := fnAssets(func(_ context.Context, skus []string) (map[string]backend.Asset, error) {
		out := make(map[string]backend.Asset, len(skus))
		for _, sku := range skus {
			out[sku] = backend.Asset{ProductURL: "https://praktis.bg/p/" + sku, ImageURL: "https://cdn.praktis.bg/" + sku + ".png"}
		}
		return out, nil
	})
	fx := newFixture(t, assets, nil)
	fx.backend.rows["all"] = manyProducts(3)
	fx.backend.rows["praktiker"] = []backend.CompareRow{wireRow("P", "praktiker", 5.0, 6.0)}
	sess := NewSession("v")

	page, err := fx.svc.Load(context.Background(), sess, Request{Site: "all"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Rows)
	assert.Equal(t, "https://praktis.bg/p/SKU-000", page.Rows[0].ProductURL)

	table, err := fx.svc.Export(context.Background(), sess, Request{Site: "all"})
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	for _, r := range table.Rows {
		assert.Equal(t, "https://praktis.bg/p/"+r.SKU, r.ProductURL)
		assert.Equal(t, "https://cdn.praktis.bg/"+r.SKU+".png", r.ImageURL)
		assert.True(t, r.Present)
	}

	single, err := fx.svc.Export(context.Background(), sess, Request{Site: "praktiker"})
	require.NoError(t, err)
	require.Len(t, single.Rows, 1)
	assert.Equal(t, "https://praktis.bg/p/P", single.Rows[0].ProductURL)

	data, err := fx.svc.Workbook(context.Background(), table)
	require.NoError(t, err)
	f := openWorkbook(t, data)
	assert.Equal(t, "https://praktis.bg/p/SKU-000", rawValue(t, f, headerCell(t, f, "Praktis URL", 2)))
}

func TestExportDegradesWhenAssetsFail(t *testing.T) {
	assets := fnAssets(func(context.Context, []string) (map[string]backend.Asset, error) {
		return nil, errors.New("assets down")
	})
	fx := newFixture(t, assets, nil)
	fx.backend.rows["all"] = manyProducts(2)

	table, err := fx.svc.Export(context.Background(), NewSession("v"), Request{Site: "all"})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Empty(t, table.Rows[0].ProductURL)
}

func TestScrapeTriggersThenReloads(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.rows["praktiker"] = []backend.CompareRow{wireRow("P", "praktiker", 5.0, 6.0)}
	sess := NewSession("v")

	res, err := fx.svc.Scrape(context.Background(), sess, Request{Site: "praktiker", Filters: Filters{Brand: " Bosch ", TagID: "2"}, Page: 3, PageSize: 200})
	require.NoError(t, err)
	require.Len(t, fx.backend.scrapes, 1)
	assert.Equal(t, backend.ScrapeFilter{SiteCode: "praktiker", Brand: "Bosch", TagID: "2", Limit: 50}, fx.backend.scrapes[0])
	assert.Equal(t, 1, res.Page.Page)
	assert.True(t, res.Page.Refetched)
	assert.Equal(t, 50, res.Job["scraped"])

	_, err = fx.svc.Scrape(context.Background(), sess, Request{Site: "all"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHistoryFiltersBySite(t *testing.T) {
	fx := newFixture(t, noAssets(), nil)
	fx.backend.history = &backend.History{ProductSKU: "A", Series: []backend.HistorySeries{{SiteCode: "praktiker"}, {SiteCode: "mashinibg"}}}

	h, err := fx.svc.History(context.Background(), "A", "mashinibg")
	require.NoError(t, err)
	require.Len(t, h.Series, 1)
	assert.Equal(t, "mashinibg", h.Series[0].SiteCode)
}
