package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("--from", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimeFlag("--from", "2025-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))

	got, err = parseTimeFlag("--to", "2025-03-02")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))

	_, err = parseTimeFlag("--to", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to")
}

func TestDayOrToday(t *testing.T) {
	assert.Equal(t, "2025-03-01", dayOrToday("2025-03-01"))
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), dayOrToday(""))
}

func TestVersionSkipsConfigLoading(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "p2pwatch dev")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"collect", "process", "best", "quote", "show", "export", "backfill", "simulate-alert", "doctor", "version"} {
		assert.True(t, names[want], want)
	}
}
