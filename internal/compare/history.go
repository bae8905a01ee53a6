package compare

import (
	"math"
	"strings"
	"time"

	"github.com/praktis/pricecompare/pkg/backend"
	"github.com/praktis/pricecompare/pkg/price"
)

// changeEpsilon is the tolerance for "did the price move" between snapshots.
// Status computation uses exact comparison instead.
const changeEpsilon = 1e-9

var historyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

type HistoryPoint struct {
	Ts        time.Time `json:"ts"`
	Regular   *float64  `json:"regular"`
	Promo     *float64  `json:"promo"`
	Effective *float64  `json:"effective"`
	Changed   bool      `json:"changed"`
	Delta     *float64  `json:"delta,omitempty"`
	Label     string    `json:"label,omitempty"`
}

type HistorySeries struct {
	SiteCode string         `json:"site_code"`
	SiteName string         `json:"site_name"`
	Color    string         `json:"color,omitempty"`
	Points   []HistoryPoint `json:"points"`
	Min      *float64       `json:"min"`
	Max      *float64       `json:"max"`
	Latest   *float64       `json:"latest"`
}

type History struct {
	SKU     string          `json:"product_sku"`
	Name    string          `json:"product_name"`
	Barcode string          `json:"product_barcode,omitempty"`
	Series  []HistorySeries `json:"series"`
}

// BuildHistory annotates each snapshot with its effective price and whether it
// moved against the previous snapshot. A non-empty site other than "all"
// keeps only series for that site.
func BuildHistory(h *backend.History, site string) History {
	out := History{Series: []HistorySeries{}}
	if h == nil {
		return out
	}
	out.SKU = h.ProductSKU.String()
	out.Name = h.ProductName
	out.Barcode = h.ProductBarcode.String()

	site = strings.TrimSpace(site)
	for _, s := range h.Series {
		if site != "" && site != "all" && !sameSite(site, s.SiteCode) {
			continue
		}
		out.Series = append(out.Series, buildSeries(s))
	}
	return out
}

func sameSite(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	code := Resolve(a)
	return code != "" && code == Resolve(b)
}

func buildSeries(s backend.HistorySeries) HistorySeries {
	name := s.SiteName
	if name == "" {
		name = s.SiteCode
	}
	series := HistorySeries{
		SiteCode: s.SiteCode,
		SiteName: name,
		Color:    s.Color,
		Points:   make([]HistoryPoint, 0, len(s.Points)),
	}

	var prev *float64
	for i, p := range s.Points {
		q := Quote{Regular: price.ParseNumeric(p.RegularPrice), Promo: price.ParseNumeric(p.PromoPrice)}
		eff := q.Effective()
		if eff == nil {
			eff = price.ParseNumeric(p.EffectivePrice)
		}
		point := HistoryPoint{
			Ts:        parseTimestamp(p.Ts),
			Regular:   q.Regular,
			Promo:     q.Promo,
			Effective: eff,
			Label:     strings.TrimSpace(p.Label),
		}
		if i > 0 && prev != nil && eff != nil && math.Abs(*eff-*prev) > changeEpsilon {
			point.Changed = true
			point.Delta = price.Ptr(*eff - *prev)
		}
		series.Points = append(series.Points, point)
		prev = eff

		if eff == nil {
			continue
		}
		if series.Min == nil || *eff < *series.Min {
			series.Min = eff
		}
		if series.Max == nil || *eff > *series.Max {
			series.Max = eff
		}
		series.Latest = eff
	}
	return series
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range historyLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
