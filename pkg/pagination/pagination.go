package pagination

import "fmt"

const (
	// DefaultPageSize is the standard page size when a size is not provided.
	DefaultPageSize = 50
	// MaxPageSize caps how many rows a single page can hold.
	MaxPageSize = 2000
)

// Params holds page-number pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Page is one slice of a fully filtered result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
}

// NormalizePageSize enforces the default and maximum page sizes.
func NormalizePageSize(size, def, max int) int {
	if def <= 0 {
		def = DefaultPageSize
	}
	if max <= 0 {
		max = MaxPageSize
	}
	if size <= 0 {
		return def
	}
	if size > max {
		return max
	}
	return size
}

// TotalPages returns ceil(total/pageSize), never less than one.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPage keeps a 1-based page number within [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		return totalPages
	}
	if page < 1 {
		return 1
	}
	return page
}

// Paginate slices items into the requested page, clamping the page number so
// the returned slice and counts always agree. Callers must pass the fully
// filtered set: Total and TotalPages are derived from len(items).
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	pages := TotalPages(total, pageSize)
	page = ClampPage(page, pages)

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page[T]{
		Items:      items[start:end:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pages,
		Total:      total,
	}
}

// Info renders the "Page N / M (rows: k of T)" pager caption.
func (p Page[T]) Info() string {
	return fmt.Sprintf("Page %d / %d (rows: %d of %d)", p.Page, p.TotalPages, len(p.Items), p.Total)
}
