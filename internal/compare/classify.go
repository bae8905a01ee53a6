package compare

// Classification is how a cell's price relates to the minimum in its row.
type Classification string

const (
	Cheapest Classification = "cheapest"
	Higher   Classification = "higher"
	Neutral  Classification = "neutral"
)

// Classify compares value with the present values in row. Every value tied at
// the minimum is Cheapest. A nil value, or a row without values, is Neutral.
func Classify(value *float64, row []*float64) Classification {
	if value == nil {
		return Neutral
	}
	lowest, ok := minOf(row)
	if !ok {
		return Neutral
	}
	switch {
	case *value == lowest:
		return Cheapest
	case *value > lowest:
		return Higher
	default:
		return Neutral
	}
}

func minOf(values []*float64) (float64, bool) {
	var (
		lowest float64
		found  bool
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		if !found || *v < lowest {
			lowest = *v
			found = true
		}
	}
	return lowest, found
}

// Status is the merchant's position against the cheapest competitor.
type Status string

const (
	StatusAny           Status = "any"
	StatusOursLower     Status = "oursLower"
	StatusOursHigher    Status = "oursHigher"
	StatusEqual         Status = "equal"
	StatusNotApplicable Status = "notApplicable"
)

// ParseStatus maps a filter value to a Status; unknown or empty values mean any.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusOursLower, StatusOursHigher, StatusEqual, StatusNotApplicable:
		return Status(raw)
	default:
		return StatusAny
	}
}

func statusOf(our *float64, comps []*float64) Status {
	if our == nil {
		return StatusNotApplicable
	}
	lowest, ok := minOf(comps)
	if !ok {
		return StatusNotApplicable
	}
	switch {
	case *our < lowest:
		return StatusOursLower
	case *our > lowest:
		return StatusOursHigher
	default:
		return StatusEqual
	}
}

// StatusAll compares our effective price with the cheapest visible competitor.
// Comparison is exact; there is no tolerance.
func StatusAll(p Product, columns []string) Status {
	comps := make([]*float64, 0, len(columns))
	for _, code := range columns {
		slot, ok := p.Competitors[code]
		if !ok {
			continue
		}
		comps = append(comps, slot.Quote.Effective())
	}
	return statusOf(p.Our.Effective(), comps)
}

// StatusSingle compares our effective price with the row's competitor.
func StatusSingle(r FlatRow) Status {
	return statusOf(r.Our.Effective(), []*float64{r.Competitor.Effective()})
}
