package controllers

import (
	"context"
	"net/http"

	"github.com/praktis/pricecompare/api/responses"
	"github.com/praktis/pricecompare/internal/categories"
	"github.com/praktis/pricecompare/internal/compare"
	"github.com/praktis/pricecompare/pkg/backend"
	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
	"github.com/praktis/pricecompare/pkg/logger"
)

// Catalog lists the filter options the console renders.
type Catalog interface {
	FetchBrands(ctx context.Context) ([]string, error)
	FetchTags(ctx context.Context) ([]backend.Tag, error)
	FetchSites(ctx context.Context) ([]backend.Site, error)
}

// CategoryTree serves the cached group hierarchy.
type CategoryTree interface {
	Tree(ctx context.Context) (*categories.Tree, error)
}

func CatalogBrands(catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		brands, err := catalog.FetchBrands(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if brands == nil {
			brands = []string{}
		}
		responses.WriteSuccess(w, brands)
	}
}

func CatalogTags(catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		tags, err := catalog.FetchTags(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if tags == nil {
			tags = []backend.Tag{}
		}
		responses.WriteSuccess(w, tags)
	}
}

func CatalogSites(catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		sites, err := catalog.FetchSites(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sites == nil {
			sites = []backend.Site{}
		}
		responses.WriteSuccess(w, sites)
	}
}

// CatalogGroups returns the category forest as nested nodes.
func CatalogGroups(tree CategoryTree, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tree == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "category tree unavailable"))
			return
		}
		t, err := tree.Tree(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roots := t.Roots
		if roots == nil {
			roots = []*categories.Node{}
		}
		responses.WriteSuccess(w, roots)
	}
}

type competitorColumn struct {
	Code    string `json:"code"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

// CatalogCompetitors lists the competitor columns and which are shown by default.
func CatalogCompetitors(defaults []string) http.HandlerFunc {
	visible := map[string]bool{}
	for _, code := range compare.ResolveColumns(defaults) {
		visible[code] = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		all := compare.Competitors()
		out := make([]competitorColumn, 0, len(all))
		for _, c := range all {
			out = append(out, competitorColumn{Code: c.Code, Label: c.Label, Default: visible[c.Code]})
		}
		responses.WriteSuccess(w, out)
	}
}
