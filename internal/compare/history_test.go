package compare

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praktis/pricecompare/pkg/backend"
)

func TestBuildHistoryMarksChanges(t *testing.T) {
	raw := &backend.History{
		ProductSKU:  "A",
		ProductName: "Drill",
		Series: []backend.HistorySeries{
			{
				SiteCode: "praktiker",
				SiteName: "Praktiker",
				Points: []backend.HistoryPoint{
					{Ts: "2024-05-01T10:00:00", RegularPrice: json.Number("12.50")},
					{Ts: "2024-05-02T10:00:00", RegularPrice: 12.5 + 1e-12},
					{Ts: "2024-05-03T10:00:00+03:00", RegularPrice: "12,50", PromoPrice: "9.99", Label: " Offer "},
					{Ts: "garbage", RegularPrice: nil},
					{Ts: "2024-05-05", RegularPrice: 11.0},
				},
			},
			{SiteCode: "mashinibg", Points: []backend.HistoryPoint{{Ts: "2024-05-01T10:00:00", RegularPrice: 10.0}}},
		},
	}

	h := BuildHistory(raw, "")
	assert.Equal(t, "A", h.SKU)
	require.Len(t, h.Series, 2)

	pts := h.Series[0].Points
	require.Len(t, pts, 5)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), pts[0].Ts)
	assert.False(t, pts[0].Changed)
	assert.False(t, pts[1].Changed, "differences within 1e-9 are not changes")

	assert.True(t, pts[2].Changed)
	assert.InDelta(t, 9.99, *pts[2].Effective, 1e-9)
	assert.InDelta(t, 9.99-(12.5+1e-12), *pts[2].Delta, 1e-9)
	assert.Equal(t, "Offer", pts[2].Label)
	assert.Equal(t, time.Date(2024, 5, 3, 7, 0, 0, 0, time.UTC), pts[2].Ts)

	assert.Nil(t, pts[3].Effective)
	assert.True(t, pts[3].Ts.IsZero())
	assert.False(t, pts[4].Changed, "no change is reported right after a gap")

	s := h.Series[0]
	assert.InDelta(t, 9.99, *s.Min, 1e-9)
	assert.InDelta(t, 12.5, *s.Max, 1e-9)
	assert.InDelta(t, 11.0, *s.Latest, 1e-9)

	assert.Equal(t, "mashinibg", h.Series[1].SiteName, "missing site name falls back to the code")
}

func TestBuildHistoryFiltersSite(t *testing.T) {
	raw := &backend.History{Series: []backend.HistorySeries{{SiteCode: "praktiker"}, {SiteCode: "mrbricolage"}}}

	h := BuildHistory(raw, "mr-bricolage")
	require.Len(t, h.Series, 1)
	assert.Equal(t, "mrbricolage", h.Series[0].SiteCode)

	assert.Len(t, BuildHistory(raw, "all").Series, 2)
	assert.Empty(t, BuildHistory(nil, "").Series)
}
