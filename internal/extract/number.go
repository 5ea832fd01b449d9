package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseNumber coerces a JSON number or numeric string into a float. Thousands separators
// and surrounding whitespace are tolerated in strings. Booleans, null, containers and
// non-finite values are rejected.
func ParseNumber(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Raw), 64)
		if err != nil {
			f = v.Num
		}
		return finite(f)
	case gjson.String:
		return ParseNumberString(v.Str)
	default:
		return 0, false
	}
}

// ParseNumberString is the string half of ParseNumber.
func ParseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
