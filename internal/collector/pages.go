package collector

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"p2pwatch/internal/model"
)

const (
	// SafetyCap bounds pages fetched per market per cycle regardless of configuration.
	SafetyCap = 200
	// DefaultPageSize applies when the request body carries no usable page size.
	DefaultPageSize = 10

	// maxCount clamps oversized counts so they resolve to SafetyCap pages.
	maxCount = math.MaxInt32

	DefaultCountPath     = "result.count"
	DefaultPageSizeField = "size"
)

// DeriveTotalPages computes ceil(count/pageSize) from a page-1 attempt. Any ambiguity in
// the body (absent, not JSON, count missing or non-numeric, parent not an object) yields 1.
func DeriveTotalPages(first model.FetchAttempt, countPath, pageSizeField string) int {
	if countPath == "" {
		countPath = DefaultCountPath
	}
	if pageSizeField == "" {
		pageSizeField = DefaultPageSizeField
	}

	if first.ResponseText == nil || !gjson.Valid(*first.ResponseText) {
		return 1
	}
	doc := gjson.Parse(*first.ResponseText)

	if i := strings.LastIndexByte(countPath, '.'); i >= 0 {
		if !doc.Get(countPath[:i]).IsObject() {
			return 1
		}
	} else if !doc.IsObject() {
		return 1
	}

	count, ok := countValue(doc.Get(countPath))
	if !ok {
		return 1
	}

	size := pageSize(first.RequestBody[pageSizeField])
	total := int(math.Ceil(float64(count) / float64(size)))
	if total < 1 {
		return 1
	}
	return total
}

// PagesToFetch is min(total, manualCap when positive, SafetyCap).
func PagesToFetch(total, manualCap int) int {
	n := total
	if manualCap > 0 && manualCap < n {
		n = manualCap
	}
	if n > SafetyCap {
		n = SafetyCap
	}
	return n
}

func countValue(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return clampCount(v.Num), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		// Out-of-range input saturates to ±MaxInt64.
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return clampCount(float64(n)), true
	default:
		return 0, false
	}
}

func clampCount(f float64) int64 {
	switch {
	case f >= maxCount:
		return maxCount
	case f <= 0:
		return 0
	default:
		return int64(f)
	}
}

func pageSize(raw any) int {
	size := DefaultPageSize
	switch v := raw.(type) {
	case nil:
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			size = n
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			size = int(n)
		} else if f, err := v.Float64(); err == nil {
			size = int(f)
		}
	case int:
		size = v
	case int64:
		size = int(v)
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			size = int(v)
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}
