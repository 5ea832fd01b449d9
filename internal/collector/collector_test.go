package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/model"
	"p2pwatch/internal/rawstore"
)

type stubFetcher struct {
	mu     sync.Mutex
	count  map[string]int
	failOn map[int]bool
	calls  []string
}

func (f *stubFetcher) FetchPage(_ context.Context, market model.Market, page int) model.FetchAttempt {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%d", market.Name, page))
	f.mu.Unlock()

	a := model.FetchAttempt{
		TS:          time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Market:      market.Name,
		Fiat:        market.Fiat,
		Side:        market.Side,
		Page:        page,
		RequestBody: map[string]any{"size": "10", "page": fmt.Sprint(page)},
	}
	if f.failOn[page] {
		msg := "connection reset"
		a.Error = &msg
		return a
	}
	status := 200
	body := fmt.Sprintf(`{"result":{"count":%d,"items":[]}}`, f.count[market.Name])
	a.HTTPStatus = &status
	a.ResponseText = &body
	return a
}

type memorySink struct {
	mu       sync.Mutex
	attempts []model.FetchAttempt
	err      error
}

func (s *memorySink) Append(a model.FetchAttempt) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return "mem://" + a.Market, nil
}

var (
	rubSell = model.Market{Name: "rub_sell", Fiat: "RUB", Side: model.SideSell, EndpointSide: "0"}
	vndBuy  = model.Market{Name: "vnd_buy", Fiat: "VND", Side: model.SideBuy, EndpointSide: "1"}
)

func pagesFor(attempts []model.FetchAttempt, market string) map[int]int {
	out := map[int]int{}
	for _, a := range attempts {
		if a.Market == market {
			out[a.Page]++
		}
	}
	return out
}

func TestRunCycleFetchesDerivedPagesPerMarket(t *testing.T) {
	f := &stubFetcher{count: map[string]int{"rub_sell": 35, "vnd_buy": 5}}
	sink := &memorySink{}
	c := New(Options{Markets: []model.Market{rubSell, vndBuy}, Concurrency: 2}, f, sink, zerolog.Nop())
	c.cycleID = func() string { return "cycle-1" }

	require.NoError(t, c.RunCycle(context.Background()))

	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1}, pagesFor(sink.attempts, "rub_sell"))
	assert.Equal(t, map[int]int{1: 1}, pagesFor(sink.attempts, "vnd_buy"))

	// Markets run in sequence: every rub_sell record precedes the vnd_buy one.
	require.Len(t, sink.attempts, 5)
	assert.Equal(t, "rub_sell", sink.attempts[0].Market)
	assert.Equal(t, 1, sink.attempts[0].Page)
	assert.Equal(t, "vnd_buy", sink.attempts[4].Market)

	for _, a := range sink.attempts {
		assert.Equal(t, "cycle-1", a.CycleID)
	}
}

// heldFetcher blocks page 2 until release is closed.
type heldFetcher struct {
	*stubFetcher
	release chan struct{}
}

func (f *heldFetcher) FetchPage(ctx context.Context, market model.Market, page int) model.FetchAttempt {
	if page == 2 {
		select {
		case <-f.release:
		case <-time.After(5 * time.Second):
		}
	}
	return f.stubFetcher.FetchPage(ctx, market, page)
}

// signalSink closes stored once the watched page is appended.
type signalSink struct {
	memorySink
	watch  int
	stored chan struct{}
}

func (s *signalSink) Append(a model.FetchAttempt) (string, error) {
	path, err := s.memorySink.Append(a)
	if a.Page == s.watch {
		close(s.stored)
	}
	return path, err
}

func TestRunCycleStoresPagesInCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	f := &heldFetcher{stubFetcher: &stubFetcher{count: map[string]int{"rub_sell": 30}}, release: release}
	sink := &signalSink{watch: 3, stored: release}
	c := New(Options{Markets: []model.Market{rubSell}, Concurrency: 2}, f, sink, zerolog.Nop())

	require.NoError(t, c.RunCycle(context.Background()))

	require.Len(t, sink.attempts, 3)
	pages := []int{sink.attempts[0].Page, sink.attempts[1].Page, sink.attempts[2].Page}
	assert.Equal(t, []int{1, 3, 2}, pages)
}

func TestRunCycleStoresFailedPages(t *testing.T) {
	f := &stubFetcher{count: map[string]int{"rub_sell": 30}, failOn: map[int]bool{2: true}}
	sink := &memorySink{}
	c := New(Options{Markets: []model.Market{rubSell}}, f, sink, zerolog.Nop())

	require.NoError(t, c.RunCycle(context.Background()))

	require.Len(t, sink.attempts, 3)
	failed := 0
	for _, a := range sink.attempts {
		if a.Failed() {
			failed++
			assert.Equal(t, 2, a.Page)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunCycleFailedFirstPageFetchesNothingElse(t *testing.T) {
	f := &stubFetcher{count: map[string]int{"rub_sell": 30}, failOn: map[int]bool{1: true}}
	sink := &memorySink{}
	c := New(Options{Markets: []model.Market{rubSell, vndBuy}}, f, sink, zerolog.Nop())

	require.NoError(t, c.RunCycle(context.Background()))
	assert.Equal(t, map[int]int{1: 1}, pagesFor(sink.attempts, "rub_sell"))
	assert.Equal(t, map[int]int{1: 1}, pagesFor(sink.attempts, "vnd_buy"))
}

func TestRunCycleHonoursCaps(t *testing.T) {
	f := &stubFetcher{count: map[string]int{"rub_sell": 10_000_000}}
	sink := &memorySink{}
	c := New(Options{Markets: []model.Market{rubSell}, Concurrency: 16}, f, sink, zerolog.Nop())
	require.NoError(t, c.RunCycle(context.Background()))
	assert.Len(t, pagesFor(sink.attempts, "rub_sell"), SafetyCap)

	sink = &memorySink{}
	c = New(Options{Markets: []model.Market{rubSell}, MaxPages: 3}, f, sink, zerolog.Nop())
	require.NoError(t, c.RunCycle(context.Background()))
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, pagesFor(sink.attempts, "rub_sell"))
}

func TestRunCycleReturnsStorageErrors(t *testing.T) {
	boom := errors.New("no space left on device")
	f := &stubFetcher{count: map[string]int{"rub_sell": 10}}
	c := New(Options{Markets: []model.Market{rubSell, vndBuy}}, f, &memorySink{err: boom}, zerolog.Nop())

	err := c.RunCycle(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"rub_sell/1"}, f.calls)
}

func TestRunOnceWritesToRawStore(t *testing.T) {
	store := rawstore.New(t.TempDir(), zerolog.Nop())
	f := &stubFetcher{count: map[string]int{"rub_sell": 20}}
	c := New(Options{Markets: []model.Market{rubSell}}, f, store, zerolog.Nop())

	require.NoError(t, c.Run(context.Background(), true))

	days, err := store.Days()
	require.NoError(t, err)
	require.Len(t, days, 1)

	seen := 0
	require.NoError(t, store.ReadDay(days[0], func(model.FetchAttempt) error {
		seen++
		return nil
	}))
	assert.Equal(t, 2, seen)
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Options{Markets: []model.Market{rubSell}}, &stubFetcher{}, &memorySink{}, zerolog.Nop())
	assert.NoError(t, c.Run(ctx, false))
}
