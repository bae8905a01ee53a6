package compare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/praktis/pricecompare/pkg/backend"
	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
	"github.com/praktis/pricecompare/pkg/logger"
	"github.com/praktis/pricecompare/pkg/pagination"
)

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeStale    = "stale"
	outcomeError    = "error"

	fallbackSession = "session"
	fallbackRedis   = "redis"

	maxScrapeBatch = 50
)

// Backend is the slice of the REST client the load cycle depends on.
type Backend interface {
	FetchCompare(ctx context.Context, q backend.CompareQuery) ([]backend.CompareRow, error)
	FetchHistory(ctx context.Context, sku string) (*backend.History, error)
	TriggerFilteredScrape(ctx context.Context, f backend.ScrapeFilter) (backend.JobResult, error)
}

// CategoryResolver expands a category id to its subtree.
type CategoryResolver interface {
	Descendants(ctx context.Context, id int) (map[int]struct{}, error)
}

// LoadObserver receives load-cycle measurements.
type LoadObserver interface {
	ObserveLoad(view, outcome string, duration time.Duration)
	IncFetchFailure(code string)
	IncStaleLoad()
	IncFallback(source string)
}

type noopObserver struct{}

func (noopObserver) ObserveLoad(string, string, time.Duration) {}
func (noopObserver) IncFetchFailure(string)                    {}
func (noopObserver) IncStaleLoad()                             {}
func (noopObserver) IncFallback(string)                        {}

// Options are the console settings the load cycle applies.
type Options struct {
	CompareLimit    int
	DefaultPageSize int
	MaxPageSize     int
	MerchantDomain  string
	FallbackToCache bool
	Columns         []string
}

// ServiceParams configure the comparison service.
type ServiceParams struct {
	Logger     *logger.Logger
	Backend    Backend
	Assets     *AssetResolver
	Cache      RowCache
	Categories CategoryResolver
	Observer   LoadObserver
	Images     ImageSource
	Options    Options
}

// Service runs load cycles: fetch when the fingerprint changed, filter,
// count, paginate, enrich the page, and commit only if still the latest load.
type Service struct {
	logg       *logger.Logger
	backend    Backend
	assets     *AssetResolver
	cache      RowCache
	categories CategoryResolver
	observer   LoadObserver
	images     ImageSource
	opts       Options
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if params.Assets == nil {
		return nil, fmt.Errorf("asset resolver required")
	}
	observer := params.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	opts := params.Options
	if opts.CompareLimit <= 0 {
		opts.CompareLimit = 2000
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = pagination.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = pagination.MaxPageSize
	}
	return &Service{
		logg:       params.Logger,
		backend:    params.Backend,
		assets:     params.Assets,
		cache:      params.Cache,
		categories: params.Categories,
		observer:   observer,
		images:     params.Images,
		opts:       opts,
	}, nil
}

// Request is one load as the console asks for it.
type Request struct {
	Site       string
	Filters    Filters
	CategoryID *int
	Page       int
	PageSize   int
	Reload     bool
}

func (r Request) fingerprint() Fingerprint {
	return NewFingerprint(r.Site, r.Filters.TagID)
}

// fetched is the row set a cycle works on and where it came from.
type fetched struct {
	rows      []FlatRow
	refetched bool
	degraded  bool
	warning   string
}

// selection is the fully filtered set, before pagination.
type selection struct {
	fp       Fingerprint
	columns  []string
	products []Product
	rows     []FlatRow
	assets   map[string]backend.Asset
}

func staleLoad() error {
	return pkgerrors.New(pkgerrors.CodeStaleLoad, "load superseded by a newer request")
}

// Load runs one cycle for sess. A cycle overtaken by a newer one returns a
// STALE_LOAD error and leaves the session untouched.
func (s *Service) Load(ctx context.Context, sess *Session, req Request) (*Page, error) {
	start := time.Now()
	seq := sess.Begin()
	fp := req.fingerprint()
	view := "single"
	if fp.AllSites() {
		view = "all"
	}

	ctx = s.logg.WithView(ctx, sess.ID())
	ctx = s.logg.WithLoadSeq(ctx, seq)
	ctx = s.logg.WithFingerprint(ctx, fp.Site, fp.Tag)
	s.logg.Debug(ctx, "compare.load.start")

	page, err := s.load(ctx, sess, seq, fp, req)
	if err != nil {
		outcome := outcomeError
		if pkgerrors.IsCode(err, pkgerrors.CodeStaleLoad) {
			outcome = outcomeStale
			s.observer.IncStaleLoad()
			s.logg.Info(ctx, "compare.load.stale")
		} else {
			s.logg.Error(ctx, "compare.load.failed", err)
		}
		s.observer.ObserveLoad(view, outcome, time.Since(start))
		return nil, err
	}

	outcome := outcomeOK
	if page.Degraded {
		outcome = outcomeDegraded
	}
	s.observer.ObserveLoad(view, outcome, time.Since(start))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"refetched":   page.Refetched,
		"degraded":    page.Degraded,
		"total":       page.Total,
		"page":        page.Page,
		"duration_ms": time.Since(start).Milliseconds(),
	}), "compare.load.complete")
	return page, nil
}

func (s *Service) load(ctx context.Context, sess *Session, seq uint64, fp Fingerprint, req Request) (*Page, error) {
	src, err := s.rowsFor(ctx, sess, seq, fp, req.Reload)
	if err != nil {
		return nil, err
	}

	sel, err := s.selectRows(ctx, fp, src.rows, req)
	if err != nil {
		return nil, err
	}
	if !sess.IsLatest(seq) {
		return nil, staleLoad()
	}

	size := pagination.NormalizePageSize(req.PageSize, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	pg := s.paginate(ctx, sel, req.Page, size)

	if !sess.Commit(seq) {
		return nil, staleLoad()
	}
	return &Page{
		Table: Table{
			Site:    fp.Site,
			Columns: columnsFor(fp, sel.columns),
			Rows:    pg.Items,
		},
		Page:       pg.Page,
		TotalPages: pg.TotalPages,
		Total:      pg.Total,
		PageSize:   pg.PageSize,
		Info:       pg.Info(),
		Seq:        seq,
		Refetched:  src.refetched,
		Degraded:   src.degraded,
		Warning:    src.warning,
	}, nil
}

// rowsFor returns the session's rows, fetching first when the fingerprint
// changed or a reload was asked for. On a failed fetch it may fall back to the
// last-known-good rows for the same fingerprint.
func (s *Service) rowsFor(ctx context.Context, sess *Session, seq uint64, fp Fingerprint, reload bool) (fetched, error) {
	if !sess.NeedsRefetch(fp, reload) {
		rows, _, _ := sess.Rows()
		return fetched{rows: rows}, nil
	}

	wire, err := s.backend.FetchCompare(ctx, backend.CompareQuery{
		SiteCode: fp.Site,
		Limit:    s.opts.CompareLimit,
		TagID:    fp.Tag,
	})
	if err != nil {
		return s.fallback(ctx, sess, seq, fp, err)
	}

	rows := FromWire(wire)
	if !sess.Store(seq, fp, rows) {
		return fetched{}, staleLoad()
	}
	if s.cache != nil {
		if cacheErr := s.cache.Save(ctx, fp, rows); cacheErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", cacheErr.Error()), "compare.rowcache.save_failed")
		}
	}
	return fetched{rows: rows, refetched: true}, nil
}

func (s *Service) fallback(ctx context.Context, sess *Session, seq uint64, fp Fingerprint, fetchErr error) (fetched, error) {
	code := string(pkgerrors.CodeInternal)
	if typed := pkgerrors.As(fetchErr); typed != nil {
		code = string(typed.Code())
	}
	s.observer.IncFetchFailure(code)

	if !sess.IsLatest(seq) {
		return fetched{}, staleLoad()
	}
	if errors.Is(ctx.Err(), context.Canceled) || !s.opts.FallbackToCache {
		return fetched{}, fetchErr
	}

	warning := "showing last known data: " + publicMessage(fetchErr)
	if rows, heldFp, ok := sess.Rows(); ok && heldFp == fp {
		s.observer.IncFallback(fallbackSession)
		s.logg.Warn(ctx, "compare.fetch.fallback_session")
		return fetched{rows: rows, degraded: true, warning: warning}, nil
	}
	if s.cache != nil {
		cached, ok, err := s.cache.Load(ctx, fp)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "compare.rowcache.load_failed")
		}
		if ok {
			s.observer.IncFallback(fallbackRedis)
			s.logg.Warn(ctx, "compare.fetch.fallback_redis")
			if !cached.FetchedAt.IsZero() {
				warning += " (cached " + cached.FetchedAt.Format(time.RFC3339) + ")"
			}
			return fetched{rows: cached.Rows, degraded: true, warning: warning}, nil
		}
	}
	return fetched{}, fetchErr
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	return "price backend unavailable"
}

func (s *Service) resolveFilters(ctx context.Context, req Request) (Filters, error) {
	f := req.Filters
	requested := f.Columns
	if len(requested) == 0 {
		requested = s.opts.Columns
	}
	f.Columns = ResolveColumns(requested)
	f.CategoryIDs = nil
	if req.CategoryID != nil {
		if s.categories == nil {
			f.CategoryIDs = map[int]struct{}{*req.CategoryID: {}}
		} else {
			ids, err := s.categories.Descendants(ctx, *req.CategoryID)
			if err != nil {
				return Filters{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve category subtree")
			}
			f.CategoryIDs = ids
		}
	}
	return f, nil
}

// selectRows applies every filter to the full row set. The presence filter
// resolves assets for the whole filtered set so counts match the pages.
func (s *Service) selectRows(ctx context.Context, fp Fingerprint, rows []FlatRow, req Request) (selection, error) {
	f, err := s.resolveFilters(ctx, req)
	if err != nil {
		return selection{}, err
	}
	sel := selection{fp: fp, columns: f.Columns}

	if fp.AllSites() {
		sel.products = Apply(Pivot(rows), ProductPredicates(f)...)
		if f.Presence == PresencePresent || f.Presence == PresenceMissing {
			assets, err := s.assets.Resolve(ctx, productSKUs(sel.products))
			if err != nil {
				return selection{}, err
			}
			sel.assets = assets
			sel.products = Apply(sel.products, PresencePredicate(f.Presence, s.opts.MerchantDomain, assets, func(p Product) string { return p.SKU }))
		}
		return sel, nil
	}

	withSKU := Apply(rows, Predicate[FlatRow](func(r FlatRow) bool { return r.ProductSKU != "" }))
	sel.rows = Apply(withSKU, RowPredicates(f)...)
	if f.Presence == PresencePresent || f.Presence == PresenceMissing {
		assets, err := s.assets.Resolve(ctx, rowSKUs(sel.rows))
		if err != nil {
			return selection{}, err
		}
		sel.assets = assets
		sel.rows = Apply(sel.rows, PresencePredicate(f.Presence, s.opts.MerchantDomain, assets, func(r FlatRow) string { return r.ProductSKU }))
	}
	return sel, nil
}

// paginate slices the selection and enriches only the visible page with
// assets, reusing any already resolved for the presence filter.
func (s *Service) paginate(ctx context.Context, sel selection, page, size int) pagination.Page[Row] {
	if sel.fp.AllSites() {
		pg := pagination.Paginate(sel.products, page, size)
		assets := s.pageAssets(ctx, sel.assets, productSKUs(pg.Items))
		rows := make([]Row, 0, len(pg.Items))
		for _, p := range pg.Items {
			rows = append(rows, ProductRow(p, sel.columns, assets[p.SKU], s.opts.MerchantDomain))
		}
		return pagination.Page[Row]{Items: rows, Page: pg.Page, PageSize: pg.PageSize, TotalPages: pg.TotalPages, Total: pg.Total}
	}

	pg := pagination.Paginate(sel.rows, page, size)
	assets := s.pageAssets(ctx, sel.assets, rowSKUs(pg.Items))
	rows := make([]Row, 0, len(pg.Items))
	for _, r := range pg.Items {
		rows = append(rows, FlatRowView(r, sel.fp.Site, assets[r.ProductSKU], s.opts.MerchantDomain))
	}
	return pagination.Page[Row]{Items: rows, Page: pg.Page, PageSize: pg.PageSize, TotalPages: pg.TotalPages, Total: pg.Total}
}

// pageAssets returns assets for the rendered skus, reusing the presence
// lookup when one ran. A failed lookup only costs the rows their links and
// images.
func (s *Service) pageAssets(ctx context.Context, resolved map[string]backend.Asset, skus []string) map[string]backend.Asset {
	if resolved != nil {
		return resolved
	}
	assets, err := s.assets.Resolve(ctx, skus)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "compare.assets.page_failed")
		return map[string]backend.Asset{}
	}
	return assets
}

// Export builds the full filtered table without pagination. It reads the
// session's rows when they match and never advances the load sequence.
func (s *Service) Export(ctx context.Context, sess *Session, req Request) (Table, error) {
	fp := req.fingerprint()
	ctx = s.logg.WithView(ctx, sess.ID())

	rows, heldFp, ok := sess.Rows()
	if req.Reload || !ok || heldFp != fp {
		wire, err := s.backend.FetchCompare(ctx, backend.CompareQuery{SiteCode: fp.Site, Limit: s.opts.CompareLimit, TagID: fp.Tag})
		if err != nil {
			return Table{}, err
		}
		rows = FromWire(wire)
	}

	sel, err := s.selectRows(ctx, fp, rows, req)
	if err != nil {
		return Table{}, err
	}
	table := Table{Site: fp.Site, Columns: columnsFor(fp, sel.columns)}
	var skus []string
	if fp.AllSites() {
		skus = productSKUs(sel.products)
	} else {
		skus = rowSKUs(sel.rows)
	}
	assets := s.pageAssets(ctx, sel.assets, skus)
	if fp.AllSites() {
		table.Rows = make([]Row, 0, len(sel.products))
		for _, p := range sel.products {
			table.Rows = append(table.Rows, ProductRow(p, sel.columns, assets[p.SKU], s.opts.MerchantDomain))
		}
	} else {
		table.Rows = make([]Row, 0, len(sel.rows))
		for _, r := range sel.rows {
			table.Rows = append(table.Rows, FlatRowView(r, fp.Site, assets[r.ProductSKU], s.opts.MerchantDomain))
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "rows", len(table.Rows)), "compare.export.complete")
	return table, nil
}

// Workbook renders an exported table as xlsx, embedding product images when
// an image source is configured.
func (s *Service) Workbook(ctx context.Context, t Table) ([]byte, error) {
	data, stats, err := BuildWorkbook(ctx, t, s.images)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build export workbook")
	}
	fields := map[string]any{"rows": stats.Rows, "images": stats.Images, "bytes": len(data)}
	if stats.ImageFailures > 0 {
		fields["image_failures"] = stats.ImageFailures
		s.logg.Warn(s.logg.WithFields(ctx, fields), "compare.export.images_skipped")
		return data, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "compare.export.workbook")
	return data, nil
}

// History returns the annotated snapshot series for one product.
func (s *Service) History(ctx context.Context, sku, site string) (History, error) {
	raw, err := s.backend.FetchHistory(ctx, sku)
	if err != nil {
		return History{}, err
	}
	return BuildHistory(raw, site), nil
}

// ScrapeResult is a filtered scrape's backend report plus the reloaded page.
type ScrapeResult struct {
	Job  backend.JobResult `json:"job"`
	Page *Page             `json:"page"`
}

// Scrape re-scrapes up to 50 products of the selected site, narrowed by the
// current filters, then reloads the first page.
func (s *Service) Scrape(ctx context.Context, sess *Session, req Request) (*ScrapeResult, error) {
	fp := req.fingerprint()
	if fp.AllSites() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select a single site to scrape")
	}
	limit := pagination.NormalizePageSize(req.PageSize, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	if limit > maxScrapeBatch {
		limit = maxScrapeBatch
	}

	job, err := s.backend.TriggerFilteredScrape(ctx, backend.ScrapeFilter{
		SiteCode:   fp.Site,
		Q:          strings.TrimSpace(req.Filters.Query),
		TagID:      fp.Tag,
		Brand:      strings.TrimSpace(req.Filters.Brand),
		CategoryID: req.CategoryID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	req.Reload = true
	req.Page = 1
	page, err := s.Load(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	return &ScrapeResult{Job: job, Page: page}, nil
}

func productSKUs(products []Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.SKU)
	}
	return out
}

func rowSKUs(rows []FlatRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ProductSKU)
	}
	return out
}
