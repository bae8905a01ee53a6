// Package price normalizes the loosely typed price values found in scraped
// catalog data. Malformed input never yields an error; it resolves to nil.
package price

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Unavailable is rendered for absent prices.
const Unavailable = "N/A"

// ParseNumeric converts numbers, localized price strings ("12,50", "1 299.00"),
// and markers such as "N/A" into an optional value.
func ParseNumeric(raw any) *float64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case *float64:
		if v == nil {
			return nil
		}
		return finite(*v)
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case json.Number:
		return ParseString(v.String())
	case string:
		return ParseString(v)
	case *string:
		if v == nil {
			return nil
		}
		return ParseString(*v)
	case decimal.Decimal:
		f, _ := v.Float64()
		return finite(f)
	default:
		return numericKind(raw)
	}
}

// numericKind accepts every integer and float kind, including named types.
func numericKind(raw any) *float64 {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return finite(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return finite(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	default:
		return nil
	}
}

// ParseString is ParseNumeric for text input.
func ParseString(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	if lower == "n/a" || lower == "none" {
		return nil
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.Replace(s, ",", ".", 1)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finite(n)
}

// Effective returns the promo price when present, else the regular price.
func Effective(promo, regular any) *float64 {
	if p := ParseNumeric(promo); p != nil {
		return p
	}
	return ParseNumeric(regular)
}

// Format renders a price with two decimals, or "N/A" when absent.
func Format(v *float64) string {
	if v == nil {
		return Unavailable
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

// Ptr is a convenience for building optional prices.
func Ptr(v float64) *float64 {
	return &v
}

// Equal compares two optional prices for exact equality.
func Equal(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
