package compare

import "github.com/praktis/pricecompare/pkg/price"

func p(v float64) *float64 { return price.Ptr(v) }

func reg(v float64) Quote { return Quote{Regular: p(v)} }

func row(sku, site string, our, comp Quote) FlatRow {
	return FlatRow{ProductSKU: sku, CompetitorSite: site, Our: our, Competitor: comp}
}
