package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString decodes a JSON string or number into its string form. Null stays empty.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInts decodes a list of category ids that may arrive as numbers or
// numeric strings. Entries that are not integers are dropped.
type FlexInts []int

func (f *FlexInts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// a single scalar id
		raw = []json.RawMessage{data}
	}
	out := make(FlexInts, 0, len(raw))
	for _, item := range raw {
		var s FlexString
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(string(s)))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	*f = out
	return nil
}

// Tag is a product tag as the backend reports it; ids may be numeric or text.
type Tag struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
}

// CompareRow is one competitor observation for one product. Price fields are
// left undecoded (json.Number, string or nil) so the caller can normalize them.
type CompareRow struct {
	ProductSKU             FlexString `json:"product_sku"`
	ProductName            string     `json:"product_name"`
	ProductBrand           string     `json:"product_brand"`
	Brand                  string     `json:"brand"`
	ProductBarcode         FlexString `json:"product_barcode"`
	ProductTags            []Tag      `json:"product_tags"`
	Tags                   []Tag      `json:"tags"`
	ProductGroupIDs        FlexInts   `json:"product_group_ids"`
	ProductPriceRegular    any        `json:"product_price_regular"`
	ProductPricePromo      any        `json:"product_price_promo"`
	CompetitorSite         string     `json:"competitor_site"`
	CompetitorSKU          FlexString `json:"competitor_sku"`
	CompetitorName         string     `json:"competitor_name"`
	CompetitorURL          string     `json:"competitor_url"`
	CompetitorPriceRegular any        `json:"competitor_price_regular"`
	CompetitorPricePromo   any        `json:"competitor_price_promo"`
	CompetitorLabel        string     `json:"competitor_label"`
}

// Asset is the merchant-site page and image for a SKU. Both may be empty.
type Asset struct {
	ProductURL string `json:"product_url"`
	ImageURL   string `json:"image_url"`
}

// Group is one node of the flat category list.
type Group struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID *int   `json:"parent_id"`
}

// Site is a registered competitor site.
type Site struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// HistoryPoint is one stored snapshot. Ts is kept as text because the backend
// emits ISO timestamps with and without a zone offset.
type HistoryPoint struct {
	Ts             string `json:"ts"`
	RegularPrice   any    `json:"regular_price"`
	PromoPrice     any    `json:"promo_price"`
	EffectivePrice any    `json:"effective_price"`
	Label          string `json:"label"`
}

type HistorySeries struct {
	SiteCode string         `json:"site_code"`
	SiteName string         `json:"site_name"`
	Color    string         `json:"color"`
	Points   []HistoryPoint `json:"points"`
}

type History struct {
	ProductSKU     FlexString      `json:"product_sku"`
	ProductName    string          `json:"product_name"`
	ProductBarcode FlexString      `json:"product_barcode"`
	Series         []HistorySeries `json:"series"`
}

// JobResult carries the counters a scrape trigger reports back.
type JobResult map[string]any

// AssetsSyncRequest selects which SKUs the backend re-scrapes from the merchant site.
type AssetsSyncRequest struct {
	SKUs  []string `json:"skus,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

type AssetsSyncResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}
