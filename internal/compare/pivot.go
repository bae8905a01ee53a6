package compare

// Pivot merges flat rows into one Product per SKU, in order of first
// appearance. Product-level fields keep the first non-empty value seen; a
// competitor slot is replaced by the last row that resolves to its code.
// Rows without a SKU are dropped. Input rows are not modified.
func Pivot(rows []FlatRow) []Product {
	index := make(map[string]int, len(rows))
	out := make([]Product, 0)

	for _, r := range rows {
		if r.ProductSKU == "" {
			continue
		}
		i, ok := index[r.ProductSKU]
		if !ok {
			i = len(out)
			index[r.ProductSKU] = i
			out = append(out, Product{
				SKU:         r.ProductSKU,
				Competitors: make(map[string]Slot, len(competitors)),
			})
		}
		p := &out[i]

		if p.Name == "" {
			p.Name = r.ProductName
		}
		if p.Brand == "" {
			p.Brand = r.ProductBrand
		}
		if len(p.Tags) == 0 && len(r.ProductTags) > 0 {
			p.Tags = append([]Tag(nil), r.ProductTags...)
		}
		if len(p.GroupIDs) == 0 && len(r.ProductGroupIDs) > 0 {
			p.GroupIDs = append([]int(nil), r.ProductGroupIDs...)
		}
		if p.Our.Empty() && !r.Our.Empty() {
			p.Our = r.Our
		}

		if code := Resolve(r.CompetitorSite); code != "" {
			p.Competitors[code] = Slot{
				Quote: r.Competitor,
				URL:   r.CompetitorURL,
				Label: r.CompetitorLabel,
			}
		}
	}
	return out
}
