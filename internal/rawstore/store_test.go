package rawstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/model"
)

func attemptAt(ts time.Time, market string, page int) model.FetchAttempt {
	status := 200
	body := fmt.Sprintf(`{"page":%d}`, page)
	return model.FetchAttempt{
		TS:            ts,
		Market:        market,
		Fiat:          "RUB",
		Side:          model.SideSell,
		Page:          page,
		RequestURL:    "https://example.test/items",
		RequestMethod: "POST",
		RequestBody:   map[string]any{"page": fmt.Sprint(page)},
		HTTPStatus:    &status,
		ResponseText:  &body,
	}
}

func TestAppendPartitionsByDayAndMarket(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, zerolog.Nop())

	ts := time.Date(2025, 3, 1, 23, 59, 0, 0, time.FixedZone("X", -3*3600))
	path, err := store.Append(attemptAt(ts, "rub_sell", 1))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "raw", "2025-03-02", "rub_sell.jsonl.gz"), path)

	days, err := store.Days()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-02"}, days)
}

func TestAppendReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, zerolog.Nop())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	errMsg := "dial tcp: timeout"
	failed := model.FetchAttempt{
		TS: ts, Market: "vnd_buy", Fiat: "VND", Side: model.SideBuy, Page: 3,
		RequestURL: "u", RequestMethod: "POST", Error: &errMsg,
	}

	_, err := store.Append(attemptAt(ts, "rub_sell", 1))
	require.NoError(t, err)
	_, err = store.Append(failed)
	require.NoError(t, err)
	_, err = store.Append(attemptAt(ts, "rub_sell", 2))
	require.NoError(t, err)

	var got []model.FetchAttempt
	require.NoError(t, store.ReadDay("2025-03-01", func(a model.FetchAttempt) error {
		got = append(got, a)
		return nil
	}))

	require.Len(t, got, 3)
	assert.Equal(t, "rub_sell", got[0].Market)
	assert.Equal(t, 1, got[0].Page)
	assert.Equal(t, 2, got[1].Page)
	assert.Equal(t, "vnd_buy", got[2].Market)
	assert.Equal(t, model.RawFormatVersion, got[2].FormatVersion)
	require.NotNil(t, got[2].Error)
	assert.Nil(t, got[2].HTTPStatus)
	assert.Nil(t, got[2].ResponseText)
	assert.True(t, got[2].TS.Equal(ts))
}

func TestConcurrentAppendsKeepEveryRecord(t *testing.T) {
	store := New(t.TempDir(), zerolog.Nop())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for page := 1; page <= 40; page++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, err := store.Append(attemptAt(ts, "rub_sell", p))
			assert.NoError(t, err)
		}(page)
	}
	wg.Wait()

	seen := map[int]bool{}
	require.NoError(t, store.ReadDay("2025-03-01", func(a model.FetchAttempt) error {
		seen[a.Page] = true
		return nil
	}))
	assert.Len(t, seen, 40)
}

func TestReadDaySkipsBadLinesAndMissingDays(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, zerolog.Nop())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Append(attemptAt(ts, "rub_sell", 1))
	require.NoError(t, err)

	// Trailing garbage simulates a torn write.
	f, err := os.OpenFile(store.Path("2025-03-01", "rub_sell"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x1f, 0x8b, 0x08})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	count := 0
	require.NoError(t, store.ReadDay("2025-03-01", func(model.FetchAttempt) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)

	require.NoError(t, store.ReadDay("2024-01-01", func(model.FetchAttempt) error {
		t.Fatal("no records expected")
		return nil
	}))
}

func TestAppendFailsWhenDirCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "raw")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := New(dir, zerolog.Nop())
	_, err := store.Append(attemptAt(time.Now(), "rub_sell", 1))
	assert.Error(t, err)
}

func TestFileNameReplacesSeparators(t *testing.T) {
	assert.Equal(t, "a_b.jsonl.gz", fileName("a/b"))
}
