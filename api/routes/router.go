package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/praktis/pricecompare/api/controllers"
	"github.com/praktis/pricecompare/api/middleware"
	"github.com/praktis/pricecompare/pkg/config"
	"github.com/praktis/pricecompare/pkg/logger"
)

// Deps are the services the console routes call. A nil RateLimit disables
// scrape throttling and a nil Gatherer hides /metrics.
type Deps struct {
	Comparison controllers.ComparisonService
	Sessions   controllers.Sessions
	Catalog    controllers.Catalog
	Categories controllers.CategoryTree
	RateLimit  middleware.RateLimiterStore
	Readiness  map[string]controllers.Pinger
	Gatherer   prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Console.CORSOrigins),
	)

	scrapePolicy := middleware.NewRateLimitPolicy(
		"scrape",
		cfg.Console.ScrapeRateWindow,
		cfg.Console.ScrapeRateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.View(logg))

		r.Route("/comparison", func(r chi.Router) {
			r.Get("/", controllers.ComparisonLoad(deps.Comparison, deps.Sessions, cfg.Console.DefaultPageSize, logg))
			r.Get("/export.xlsx", controllers.ComparisonExport(deps.Comparison, deps.Sessions, cfg.Console.DefaultPageSize, logg))
			r.With(middleware.RateLimit(scrapePolicy, deps.RateLimit, logg)).
				Post("/scrape", controllers.ComparisonScrape(deps.Comparison, deps.Sessions, logg))
		})

		r.Get("/products/{sku}/history", controllers.ProductHistory(deps.Comparison, logg))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/brands", controllers.CatalogBrands(deps.Catalog, logg))
			r.Get("/tags", controllers.CatalogTags(deps.Catalog, logg))
			r.Get("/sites", controllers.CatalogSites(deps.Catalog, logg))
			r.Get("/groups", controllers.CatalogGroups(deps.Categories, logg))
			r.Get("/competitors", controllers.CatalogCompetitors(cfg.Console.Columns))
		})
	})

	return r
}
