package validators

import (
	"net/http"

	"github.com/praktis/pricecompare/internal/compare"
)

// ComparisonQuery is the filter state the console sends with every load.
type ComparisonQuery struct {
	Site       string   `query:"site" validate:"max=64"`
	Tag        string   `query:"tag" validate:"max=64"`
	Brand      string   `query:"brand" validate:"max=128"`
	Query      string   `query:"q" validate:"max=200"`
	CategoryID *int     `query:"category" validate:"omitempty,min=0"`
	Status     string   `query:"status" validate:"omitempty,oneof=any oursLower oursHigher equal notApplicable"`
	Presence   string   `query:"presence" validate:"omitempty,oneof=any present missing true false 1 0 yes no"`
	Columns    []string `query:"columns" validate:"max=8,dive,max=64"`
	Page       int      `query:"page" validate:"min=1"`
	PageSize   int      `query:"page_size" validate:"min=1"`
	Reload     bool     `query:"reload"`
}

// ParseComparisonQuery reads and validates the comparison filters. Page size
// above maxPageSize is clamped later, not rejected.
func ParseComparisonQuery(r *http.Request, defaultPageSize int) (ComparisonQuery, error) {
	page, err := ParseQueryInt(r, "page", 1, 1, 1<<30)
	if err != nil {
		return ComparisonQuery{}, err
	}
	pageSize, err := ParseQueryInt(r, "page_size", defaultPageSize, 1, 1<<30)
	if err != nil {
		return ComparisonQuery{}, err
	}
	category, err := ParseQueryOptionalInt(r, "category")
	if err != nil {
		return ComparisonQuery{}, err
	}
	values := r.URL.Query()
	q := ComparisonQuery{
		Site:       SanitizeString(values.Get("site"), 0),
		Tag:        SanitizeString(values.Get("tag"), 0),
		Brand:      SanitizeSearch(values.Get("brand"), MaxBrandLength),
		Query:      SanitizeSearch(values.Get("q"), MaxSearchLength),
		CategoryID: category,
		Status:     SanitizeString(values.Get("status"), 0),
		Presence:   SanitizeString(values.Get("presence"), 0),
		Columns:    ParseQueryList(r, "columns"),
		Page:       page,
		PageSize:   pageSize,
		Reload:     ParseQueryBool(r, "reload"),
	}
	if err := Struct(q); err != nil {
		return ComparisonQuery{}, err
	}
	return q, nil
}

// Request converts the query into a load request.
func (q ComparisonQuery) Request() compare.Request {
	return compare.Request{
		Site: q.Site,
		Filters: compare.Filters{
			Query:       q.Query,
			Brand:       q.Brand,
			TagID:       q.Tag,
			PriceStatus: compare.ParseStatus(q.Status),
			Presence:    compare.ParsePresence(q.Presence),
			Columns:     q.Columns,
		},
		CategoryID: q.CategoryID,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Reload:     q.Reload,
	}
}
