package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/praktis/pricecompare/api/middleware"
	"github.com/praktis/pricecompare/api/responses"
	"github.com/praktis/pricecompare/api/validators"
	"github.com/praktis/pricecompare/internal/compare"
	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
	"github.com/praktis/pricecompare/pkg/logger"
)

// ComparisonService is the load/export/scrape surface the console calls.
type ComparisonService interface {
	Load(ctx context.Context, sess *compare.Session, req compare.Request) (*compare.Page, error)
	Export(ctx context.Context, sess *compare.Session, req compare.Request) (compare.Table, error)
	Workbook(ctx context.Context, t compare.Table) ([]byte, error)
	Scrape(ctx context.Context, sess *compare.Session, req compare.Request) (*compare.ScrapeResult, error)
	History(ctx context.Context, sku, site string) (compare.History, error)
}

// Sessions hands out the per-view session.
type Sessions interface {
	Get(viewID string) *compare.Session
}

// ComparisonLoad serves one page of the comparison table for the caller's view.
func ComparisonLoad(svc ComparisonService, sessions Sessions, defaultPageSize int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "comparison service unavailable"))
			return
		}
		q, err := validators.ParseComparisonQuery(r, defaultPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess := sessions.Get(middleware.ViewIDFromContext(r.Context()))
		page, err := svc.Load(r.Context(), sess, q.Request())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ComparisonExport serves the full filtered table as an xlsx workbook.
func ComparisonExport(svc ComparisonService, sessions Sessions, defaultPageSize int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "comparison service unavailable"))
			return
		}
		q, err := validators.ParseComparisonQuery(r, defaultPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess := sessions.Get(middleware.ViewIDFromContext(r.Context()))
		table, err := svc.Export(r.Context(), sess, q.Request())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := svc.Workbook(r.Context(), table)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filename := fmt.Sprintf("comparison-%s-%s.xlsx", table.Site, time.Now().UTC().Format("20060102-1504"))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil && logg != nil {
			logg.Error(r.Context(), "compare.export.write_failed", err)
		}
	}
}

type scrapeRequest struct {
	Site     string   `json:"site" validate:"required,max=64"`
	Tag      string   `json:"tag" validate:"max=64"`
	Brand    string   `json:"brand" validate:"max=128"`
	Query    string   `json:"q" validate:"max=200"`
	Category *int     `json:"category" validate:"omitempty,min=0"`
	Status   string   `json:"status" validate:"omitempty,oneof=any oursLower oursHigher equal notApplicable"`
	Presence string   `json:"presence" validate:"omitempty,oneof=any present missing"`
	Columns  []string `json:"columns" validate:"max=8,dive,max=64"`
	PageSize int      `json:"page_size" validate:"omitempty,min=1"`
}

func (p scrapeRequest) toRequest() compare.Request {
	q := validators.ComparisonQuery{
		Site:       p.Site,
		Tag:        p.Tag,
		Brand:      p.Brand,
		Query:      p.Query,
		CategoryID: p.Category,
		Status:     p.Status,
		Presence:   p.Presence,
		Columns:    p.Columns,
		Page:       1,
		PageSize:   p.PageSize,
	}
	return q.Request()
}

// ComparisonScrape triggers a filtered scrape for a single site and returns
// the reloaded first page.
func ComparisonScrape(svc ComparisonService, sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "comparison service unavailable"))
			return
		}
		var payload scrapeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess := sessions.Get(middleware.ViewIDFromContext(r.Context()))
		result, err := svc.Scrape(r.Context(), sess, payload.toRequest())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}
