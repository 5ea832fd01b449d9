package collector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"p2pwatch/internal/model"
)

func pageOne(body string, size any) model.FetchAttempt {
	a := model.FetchAttempt{Page: 1, RequestBody: map[string]any{}}
	if size != nil {
		a.RequestBody["size"] = size
	}
	if body != "" {
		a.ResponseText = &body
	}
	return a
}

func TestDeriveTotalPages(t *testing.T) {
	cases := []struct {
		name string
		body string
		size any
		want int
	}{
		{"exact multiple", `{"result":{"count":30}}`, "10", 3},
		{"rounds up", `{"result":{"count":31}}`, "10", 4},
		{"string count", `{"result":{"count":"45"}}`, 20, 3},
		{"json number size", `{"result":{"count":45}}`, json.Number("20"), 3},
		{"float size", `{"result":{"count":45}}`, 20.0, 3},
		{"default size", `{"result":{"count":25}}`, nil, 3},
		{"non numeric size falls back", `{"result":{"count":25}}`, "ten", 3},
		{"size floor of one", `{"result":{"count":7}}`, "0", 7},
		{"zero count", `{"result":{"count":0}}`, "10", 1},
		{"negative count", `{"result":{"count":-5}}`, "10", 1},
		{"missing count", `{"result":{"items":[]}}`, "10", 1},
		{"non numeric count", `{"result":{"count":"many"}}`, "10", 1},
		{"result not object", `{"result":[1,2]}`, "10", 1},
		{"body not object", `[{"count":50}]`, "10", 1},
		{"not json", `<html>blocked</html>`, "10", 1},
		{"no body", ``, "10", 1},
		{"huge numeric count", `{"result":{"count":1e19}}`, "10", maxCount/10 + 1},
		{"huge float count", `{"result":{"count":1e300}}`, "10", maxCount/10 + 1},
		{"overlong string count", `{"result":{"count":"99999999999999999999"}}`, "10", maxCount/10 + 1},
		{"overlong negative string", `{"result":{"count":"-99999999999999999999"}}`, "10", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveTotalPages(pageOne(tc.body, tc.size), "", ""))
		})
	}
}

func TestDeriveTotalPagesCustomPaths(t *testing.T) {
	a := pageOne(`{"data":{"total":"120"}}`, nil)
	a.RequestBody["rows"] = "50"
	assert.Equal(t, 3, DeriveTotalPages(a, "data.total", "rows"))
}

func TestOversizedCountHitsSafetyCap(t *testing.T) {
	for _, body := range []string{
		`{"result":{"count":1e19}}`,
		`{"result":{"count":1e300}}`,
		`{"result":{"count":"99999999999999999999"}}`,
	} {
		total := DeriveTotalPages(pageOne(body, "10"), "", "")
		assert.Equal(t, SafetyCap, PagesToFetch(total, 0), body)
		assert.Equal(t, 5, PagesToFetch(total, 5), body)
	}
}

func TestPagesToFetch(t *testing.T) {
	assert.Equal(t, 4, PagesToFetch(4, 0))
	assert.Equal(t, 4, PagesToFetch(4, -1))
	assert.Equal(t, 2, PagesToFetch(4, 2))
	assert.Equal(t, 4, PagesToFetch(4, 10))
	assert.Equal(t, SafetyCap, PagesToFetch(100000, 0))
	assert.Equal(t, SafetyCap, PagesToFetch(100000, 500))
	assert.Equal(t, 1, PagesToFetch(1, 0))
}
