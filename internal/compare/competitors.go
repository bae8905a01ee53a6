package compare

import "strings"

// Competitor maps free-form site strings onto a canonical code.
type Competitor struct {
	Pattern string
	Code    string
	Label   string
}

const (
	CodePraktiker   = "praktiker"
	CodeMrBricolage = "mrbricolage"
	CodeMashiniBG   = "mashinibg"

	// OurColumn is the merchant's own price column.
	OurColumn = "praktis"
)

// competitors is evaluated top to bottom; the first pattern contained in the
// lower-cased site wins.
var competitors = []Competitor{
	{Pattern: "praktiker", Code: CodePraktiker, Label: "Praktiker"},
	{Pattern: "bricol", Code: CodeMrBricolage, Label: "MrBricolage"},
	{Pattern: "mashin", Code: CodeMashiniBG, Label: "OnlineMashini"},
}

// Competitors returns the registry in evaluation order.
func Competitors() []Competitor {
	out := make([]Competitor, len(competitors))
	copy(out, competitors)
	return out
}

// Resolve returns the competitor code for a site string, or "" when none matches.
func Resolve(site string) string {
	s := strings.ToLower(strings.TrimSpace(site))
	if s == "" {
		return ""
	}
	for _, c := range competitors {
		if strings.Contains(s, c.Pattern) {
			return c.Code
		}
	}
	return ""
}

// ResolveColumns keeps requested entries that resolve to a known code, drops
// duplicates and keeps the requested order. No usable entry means every code
// in registry order.
func ResolveColumns(requested []string) []string {
	seen := make(map[string]struct{}, len(competitors))
	out := make([]string, 0, len(competitors))
	for _, raw := range requested {
		code := Resolve(raw)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	if len(out) > 0 {
		return out
	}
	for _, c := range competitors {
		out = append(out, c.Code)
	}
	return out
}

// Label returns the display label for a code, falling back to the code.
func Label(code string) string {
	if code == OurColumn {
		return "Praktis"
	}
	for _, c := range competitors {
		if c.Code == code {
			return c.Label
		}
	}
	return code
}
