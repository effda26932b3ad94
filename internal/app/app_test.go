package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catalogbot/internal/catalog"
	"catalogbot/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN", "ADMIN_CHAT_ID", "REDIS_URL", "CLICKHOUSE_HOST", "CATALOG_API_URL", "CATALOG_OPTIONS_FILE", "WEBHOOK_MODE"} {
		t.Setenv(key, "")
	}
	t.Setenv("USE_MOCK_STORE", "true")
	t.Setenv("API_KEY", "secret")
	t.Setenv("WEBHOOK_SECRET", "hook")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	app, err := NewWithConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Shutdown() })
	return app
}

func TestApp_Health(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "mode: polling")
}

func TestApp_WebhookWithoutBot(t *testing.T) {
	app := newTestApp(t)
	require.Nil(t, app.bot, "no token, no bot")

	req := httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(SecretHeader, "hook")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(`{"update_id":1}`))
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApp_ProductAPIMounted(t *testing.T) {
	app := newTestApp(t)

	body := `{"title":"Remera","images":["images/a.jpg"],"price":1500,"fabric":"lino"}`
	req := httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body))
	req.Header.Set(catalog.APIKeyHeader, "secret")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Remera"`)
}

func TestSettings(t *testing.T) {
	app := newTestApp(t)

	got := map[string]bool{}
	for _, s := range settings(app.config) {
		got[s.Name] = s.Configured
	}
	assert.Equal(t, map[string]bool{
		"TELEGRAM_BOT_TOKEN": false,
		"ADMIN_CHAT_ID":      false,
		"API_KEY":            true,
		"GITHUB_TOKEN":       true,
		"GITHUB_OWNER":       true,
		"GITHUB_REPO":        true,
	}, got)
}

func TestWebhookHandler(t *testing.T) {
	var got []tgbotapi.Update
	handler := webhookHandler(func(u tgbotapi.Update) { got = append(got, u) }, "", zap.NewNop())

	tests := []struct {
		name string
		body string
	}{
		{"valid update", `{"update_id":7,"message":{"message_id":1,"chat":{"id":5},"text":"hola"}}`},
		{"malformed body", `{"update_id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusOK, rec.Code, "Telegram always gets 200")
			assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		})
	}

	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].UpdateID)
	assert.Equal(t, "hola", got[0].Message.Text)
}

func TestWebhookHandler_Secret(t *testing.T) {
	calls := 0
	handler := webhookHandler(func(tgbotapi.Update) { calls++ }, "s3cret", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(SecretHeader, "wrong")
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(SecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
