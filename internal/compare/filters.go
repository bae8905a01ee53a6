package compare

import (
	"strings"
	"unicode"
)

// Filters is the operator-controlled state applied to the fetched row set.
type Filters struct {
	Query       string
	Brand       string
	TagID       string
	CategoryIDs map[int]struct{}
	PriceStatus Status
	Presence    Presence
	Columns     []string
}

// Predicate is one independent filter. Predicates do not depend on each other,
// so Apply gives the same result in any order.
type Predicate[T any] func(T) bool

// Apply keeps the items accepted by every predicate. Nil predicates are skipped.
func Apply[T any](items []T, preds ...Predicate[T]) []T {
	active := preds[:0:0]
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	out := make([]T, 0, len(items))
next:
	for _, item := range items {
		for _, p := range active {
			if !p(item) {
				continue next
			}
		}
		out = append(out, item)
	}
	return out
}

// NormalizeBrand lower-cases s and removes whitespace and dots.
func NormalizeBrand(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r == '.' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BrandMatches reports whether the normalized brand contains the normalized
// filter. An empty filter matches everything; an empty brand matches nothing
// once a filter is set.
func BrandMatches(brand, filter string) bool {
	f := NormalizeBrand(filter)
	if f == "" {
		return true
	}
	b := NormalizeBrand(brand)
	if b == "" {
		return false
	}
	return strings.Contains(b, f)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func hasTag(tags []Tag, id string) bool {
	for _, t := range tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

func intersects(ids []int, set map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func tagFilter(f Filters) string {
	tag := strings.TrimSpace(f.TagID)
	if tag == "all" {
		return ""
	}
	return tag
}

// ProductPredicates builds the synchronous predicates for the all-sites view.
// Presence needs asset data and is applied separately.
func ProductPredicates(f Filters) []Predicate[Product] {
	var preds []Predicate[Product]

	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		preds = append(preds, func(p Product) bool {
			return containsFold(p.SKU, q) || containsFold(p.Name, q)
		})
	}
	if NormalizeBrand(f.Brand) != "" {
		brand := f.Brand
		preds = append(preds, func(p Product) bool { return BrandMatches(p.Brand, brand) })
	}
	if tag := tagFilter(f); tag != "" {
		preds = append(preds, func(p Product) bool { return hasTag(p.Tags, tag) })
	}
	if f.CategoryIDs != nil {
		set := f.CategoryIDs
		preds = append(preds, func(p Product) bool { return intersects(p.GroupIDs, set) })
	}
	if f.PriceStatus != "" && f.PriceStatus != StatusAny {
		want, columns := f.PriceStatus, f.Columns
		preds = append(preds, func(p Product) bool { return StatusAll(p, columns) == want })
	}
	return preds
}

// RowPredicates builds the synchronous predicates for a single-site view. Text
// search also covers the competitor's sku and name and the barcode.
func RowPredicates(f Filters) []Predicate[FlatRow] {
	var preds []Predicate[FlatRow]

	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		preds = append(preds, func(r FlatRow) bool {
			for _, field := range []string{r.ProductSKU, r.ProductName, r.ProductBarcode, r.CompetitorSKU, r.CompetitorName} {
				if containsFold(field, q) {
					return true
				}
			}
			return false
		})
	}
	if NormalizeBrand(f.Brand) != "" {
		brand := f.Brand
		preds = append(preds, func(r FlatRow) bool { return BrandMatches(r.ProductBrand, brand) })
	}
	if tag := tagFilter(f); tag != "" {
		preds = append(preds, func(r FlatRow) bool { return hasTag(r.ProductTags, tag) })
	}
	if f.CategoryIDs != nil {
		set := f.CategoryIDs
		preds = append(preds, func(r FlatRow) bool { return intersects(r.ProductGroupIDs, set) })
	}
	if f.PriceStatus != "" && f.PriceStatus != StatusAny {
		want := f.PriceStatus
		preds = append(preds, func(r FlatRow) bool { return StatusSingle(r) == want })
	}
	return preds
}
