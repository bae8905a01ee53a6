package compare

import (
	"github.com/praktis/pricecompare/pkg/backend"
	"github.com/praktis/pricecompare/pkg/price"
)

type Column struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Cell is one price cell, classified against the other visible cells of its row.
type Cell struct {
	Column         string         `json:"column"`
	Regular        *float64       `json:"regular"`
	Promo          *float64       `json:"promo"`
	Price          *float64       `json:"price"`
	Display        string         `json:"display"`
	Classification Classification `json:"classification"`
	URL            string         `json:"url,omitempty"`
	Label          string         `json:"label,omitempty"`
}

// Row is one render-ready table row.
type Row struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Brand          string `json:"brand,omitempty"`
	Barcode        string `json:"barcode,omitempty"`
	Tags           []Tag  `json:"tags,omitempty"`
	CompetitorSKU  string `json:"competitor_sku,omitempty"`
	CompetitorName string `json:"competitor_name,omitempty"`
	ProductURL     string `json:"product_url,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Present        bool   `json:"present"`
	Status         Status `json:"status"`
	Cells          []Cell `json:"cells"`
}

// Table is the column layout plus the rows to show under it.
type Table struct {
	Site    string   `json:"site_code"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Page is one committed load cycle's result.
type Page struct {
	Table
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Total      int    `json:"total"`
	PageSize   int    `json:"page_size"`
	Info       string `json:"info"`
	Seq        uint64 `json:"seq"`
	Refetched  bool   `json:"refetched"`
	Degraded   bool   `json:"degraded"`
	Warning    string `json:"warning,omitempty"`
}

func columnsFor(fp Fingerprint, competitorColumns []string) []Column {
	cols := []Column{{Code: OurColumn, Label: Label(OurColumn)}}
	if fp.AllSites() {
		for _, code := range competitorColumns {
			cols = append(cols, Column{Code: code, Label: Label(code)})
		}
		return cols
	}
	code := singleSiteCode(fp.Site)
	return append(cols, Column{Code: code, Label: Label(code)})
}

func singleSiteCode(site string) string {
	if code := Resolve(site); code != "" {
		return code
	}
	return site
}

func newCell(column string, q Quote, row []*float64) Cell {
	eff := q.Effective()
	return Cell{
		Column:         column,
		Regular:        q.Regular,
		Promo:          q.Promo,
		Price:          eff,
		Display:        price.Format(eff),
		Classification: Classify(eff, row),
	}
}

// ProductRow renders a pivoted product with our cell followed by one cell per
// visible competitor column, in column order.
func ProductRow(p Product, columns []string, asset backend.Asset, domain string) Row {
	quotes := make([]Quote, 0, len(columns)+1)
	quotes = append(quotes, p.Our)
	for _, code := range columns {
		quotes = append(quotes, p.Competitors[code].Quote)
	}
	values := effectives(quotes)

	cells := make([]Cell, 0, len(quotes))
	cells = append(cells, newCell(OurColumn, p.Our, values))
	for _, code := range columns {
		slot := p.Competitors[code]
		cell := newCell(code, slot.Quote, values)
		cell.URL = slot.URL
		cell.Label = slot.Label
		cells = append(cells, cell)
	}

	return Row{
		SKU:        p.SKU,
		Name:       displayName(p.Name),
		Brand:      p.Brand,
		Tags:       p.Tags,
		ProductURL: asset.ProductURL,
		ImageURL:   asset.ImageURL,
		Present:    HasPresence(asset.ProductURL, domain),
		Status:     StatusAll(p, columns),
		Cells:      cells,
	}
}

// FlatRowView renders a single-site row: our cell and the competitor's cell.
func FlatRowView(r FlatRow, site string, asset backend.Asset, domain string) Row {
	values := effectives([]Quote{r.Our, r.Competitor})
	comp := newCell(singleSiteCode(site), r.Competitor, values)
	comp.URL = r.CompetitorURL
	comp.Label = r.CompetitorLabel

	return Row{
		SKU:            r.ProductSKU,
		Name:           displayName(r.ProductName),
		Brand:          r.ProductBrand,
		Barcode:        r.ProductBarcode,
		Tags:           r.ProductTags,
		CompetitorSKU:  r.CompetitorSKU,
		CompetitorName: displayName(r.CompetitorName),
		ProductURL:     asset.ProductURL,
		ImageURL:       asset.ImageURL,
		Present:        HasPresence(asset.ProductURL, domain),
		Status:         StatusSingle(r),
		Cells:          []Cell{newCell(OurColumn, r.Our, values), comp},
	}
}

func effectives(quotes []Quote) []*float64 {
	out := make([]*float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.Effective()
	}
	return out
}

func displayName(name string) string {
	if name == "" {
		return price.Unavailable
	}
	return name
}
