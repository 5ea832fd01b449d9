package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNote() Notification {
	return Notification{
		Bucket:        time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		AcquireFiat:   "RUB",
		DisposeFiat:   "VND",
		AcquirePrice:  decimal.RequireFromString("92.5"),
		DisposePrice:  decimal.RequireFromString("24800"),
		CrossRate:     decimal.RequireFromString("268.1081"),
		Threshold:     decimal.RequireFromString("265"),
		AcquireAmount: decimal.NewFromInt(1000),
		Channels:      []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received), "解析请求体失败")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, notifier.Notify(context.Background(), sampleNote()), "Telegram Notify 应成功")

	assert.Equal(t, "/bottoken/sendMessage", path, "路径应包含 sendMessage")
	assert.Equal(t, "chat", received["chat_id"], "chat_id 不正确")
	assert.Contains(t, received["text"], "RUB→VND")
}

func TestTelegramNotifierErrors(t *testing.T) {
	okFalse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer okFalse.Close()

	notifier := NewTelegramNotifier("token", "chat", okFalse.URL, time.Second, zerolog.Nop())
	assert.Error(t, notifier.Notify(context.Background(), sampleNote()), "ok=false 应报错")

	badStatus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer badStatus.Close()

	notifier = NewTelegramNotifier("token", "chat", badStatus.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), sampleNote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "响应码异常: 401")
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(sampleNote())

	assert.True(t, strings.HasPrefix(msg, "[P2P RUB→VND]\n"))
	assert.Contains(t, msg, "Bucket: 2025-03-01T10:00:00Z UTC")
	assert.Contains(t, msg, "Acquire: 92.5000 RUB/USDT")
	assert.Contains(t, msg, "Dispose: 24800.0000 VND/USDT")
	assert.Contains(t, msg, "Cross: 268.1081 VND per RUB (threshold 265.0000)")
	assert.Contains(t, msg, "1000 RUB → 268108 VND")
	assert.Contains(t, msg, "Channels: telegram")
}
