// Package compare holds the price-comparison core: pivoting flat competitor
// rows into one row per product, filtering, classifying cells against the row
// minimum, paginating, and the session that owns the fetched row set.
package compare

import (
	"strings"

	"github.com/praktis/pricecompare/pkg/backend"
	"github.com/praktis/pricecompare/pkg/price"
)

// Quote is one side's price observation. Nil means no value.
type Quote struct {
	Regular *float64 `json:"regular"`
	Promo   *float64 `json:"promo"`
}

// Effective returns the promo price when present, else the regular price.
func (q Quote) Effective() *float64 {
	if q.Promo != nil {
		return q.Promo
	}
	return q.Regular
}

// Empty reports a quote with no data; it takes no part in minimum or status computations.
func (q Quote) Empty() bool {
	return q.Regular == nil && q.Promo == nil
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FlatRow is one competitor observation for one product.
type FlatRow struct {
	ProductSKU      string `json:"product_sku"`
	ProductName     string `json:"product_name,omitempty"`
	ProductBrand    string `json:"product_brand,omitempty"`
	ProductBarcode  string `json:"product_barcode,omitempty"`
	ProductTags     []Tag  `json:"product_tags,omitempty"`
	ProductGroupIDs []int  `json:"product_group_ids,omitempty"`
	Our             Quote  `json:"our"`
	CompetitorSite  string `json:"competitor_site,omitempty"`
	CompetitorSKU   string `json:"competitor_sku,omitempty"`
	CompetitorName  string `json:"competitor_name,omitempty"`
	CompetitorURL   string `json:"competitor_url,omitempty"`
	CompetitorLabel string `json:"competitor_label,omitempty"`
	Competitor      Quote  `json:"competitor"`
}

// Slot is a competitor's latest data for one product.
type Slot struct {
	Quote Quote  `json:"quote"`
	URL   string `json:"url,omitempty"`
	Label string `json:"label,omitempty"`
}

// Product is one pivoted row: the merchant's data plus one slot per competitor code.
type Product struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Tags        []Tag           `json:"tags"`
	GroupIDs    []int           `json:"group_ids"`
	Our         Quote           `json:"our"`
	Competitors map[string]Slot `json:"competitors"`
}

// FromWire normalizes backend rows. Malformed prices become nil; rows keep
// their order. Brand and tags fall back to the legacy "brand" and "tags" keys.
func FromWire(rows []backend.CompareRow) []FlatRow {
	out := make([]FlatRow, 0, len(rows))
	for _, r := range rows {
		brand := strings.TrimSpace(r.ProductBrand)
		if brand == "" {
			brand = strings.TrimSpace(r.Brand)
		}
		wireTags := r.ProductTags
		if len(wireTags) == 0 {
			wireTags = r.Tags
		}
		var tags []Tag
		if len(wireTags) > 0 {
			tags = make([]Tag, 0, len(wireTags))
			for _, t := range wireTags {
				tags = append(tags, Tag{ID: strings.TrimSpace(t.ID.String()), Name: t.Name})
			}
		}
		var groups []int
		if len(r.ProductGroupIDs) > 0 {
			groups = append(groups, r.ProductGroupIDs...)
		}
		out = append(out, FlatRow{
			ProductSKU:      strings.TrimSpace(r.ProductSKU.String()),
			ProductName:     strings.TrimSpace(r.ProductName),
			ProductBrand:    brand,
			ProductBarcode:  strings.TrimSpace(r.ProductBarcode.String()),
			ProductTags:     tags,
			ProductGroupIDs: groups,
			Our: Quote{
				Regular: price.ParseNumeric(r.ProductPriceRegular),
				Promo:   price.ParseNumeric(r.ProductPricePromo),
			},
			CompetitorSite:  strings.TrimSpace(r.CompetitorSite),
			CompetitorSKU:   strings.TrimSpace(r.CompetitorSKU.String()),
			CompetitorName:  strings.TrimSpace(r.CompetitorName),
			CompetitorURL:   strings.TrimSpace(r.CompetitorURL),
			CompetitorLabel: strings.TrimSpace(r.CompetitorLabel),
			Competitor: Quote{
				Regular: price.ParseNumeric(r.CompetitorPriceRegular),
				Promo:   price.ParseNumeric(r.CompetitorPricePromo),
			},
		})
	}
	return out
}
