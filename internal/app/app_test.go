package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

// botAPI records Bot API calls by method.
type botAPI struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.calls[method] = append(b.calls[method], string(body))
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "sendMessage":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":555,"chat":{"id":-1001,"type":"supergroup"},"text":"x"}}`)
	default:
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (b *botAPI) get(method string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls[method]...)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRun_OrderLifecycle(t *testing.T) {
	api := &botAPI{calls: make(map[string][]string)}
	tg := httptest.NewServer(api)
	defer tg.Close()

	addr := freeAddr(t)
	cfg := &Config{
		Addr:           addr,
		SeedFile:       "../../db/seed/products.json",
		AdminURLPrefix: "https://admin.example",
		PublicURL:      "http://" + addr,
		Telegram: TelegramConfig{
			Token:         "123:abc",
			GroupChatID:   "-1001",
			Enabled:       true,
			APIURL:        tg.URL,
			Timeout:       2 * time.Second,
			Mode:          ModeWebhook,
			WebhookSecret: "s3cret",
		},
		Notify:    NotifyConfig{Workers: 2, QueueSize: 8, MaxAttempts: 1},
		Lock:      LockConfig{TTL: time.Second},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("Run did not stop")
		}
	}()

	base := "http://" + addr
	client := &http.Client{Timeout: 5 * time.Second}
	call := func(method, path, body string, header http.Header) (int, string) {
		req, err := http.NewRequest(method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header[k] = v
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(data)
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	// Place an order: hoodie at its 220000 discount price, 10% promo.
	code, body := call(http.MethodPost, "/api/v1/orders", `{
		"items": [{"product_id": 1, "qty": 1}, {"product_id": 3, "qty": 2}],
		"full_name": "Aziza <b>Karimova</b>",
		"phone_number": "+998901234567",
		"payment_method": "cash",
		"promo_code": "welcome10"
	}`, nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.JSONEq(t, `"310000.00"`, rawField(t, body, "subtotal"))
	assert.JSONEq(t, `"279000.00"`, rawField(t, body, "total"))

	// The committed order reaches the staff group.
	require.Eventually(t, func() bool { return len(api.get("sendMessage")) == 1 }, 5*time.Second, 10*time.Millisecond)
	msg := api.get("sendMessage")[0]
	text := strField(t, msg, "text")
	assert.Contains(t, text, "Aziza &lt;b&gt;Karimova&lt;/b&gt;")
	assert.Contains(t, text, "https://admin.example/admin/orders/order/1/change/")
	assert.Contains(t, msg, "order_success:1")
	assert.Contains(t, msg, "order_cancel:1")

	// Wrong secret is refused.
	code, _ = call(http.MethodPost, WebhookPath, `{"update_id": 1}`, http.Header{"X-Telegram-Bot-Api-Secret-Token": {"nope"}})
	assert.Equal(t, http.StatusForbidden, code)

	// Staff press "confirm".
	code, body = call(http.MethodPost, WebhookPath, `{
		"update_id": 2,
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 42, "is_bot": false, "first_name": "Staff"},
			"message": {"message_id": 555, "chat": {"id": -1001, "type": "supergroup"}, "text": "order"},
			"data": "order_success:1"
		}
	}`, http.Header{"X-Telegram-Bot-Api-Secret-Token": {"s3cret"}})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","message":"Update processed"}`, body)

	code, body = call(http.MethodGet, "/api/v1/orders/1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"confirmed"`, rawField(t, body, "status"))
	assert.JSONEq(t, `"WELCOME10"`, rawField(t, body, "promo_code"))

	require.Len(t, api.get("answerCallbackQuery"), 1)
	assert.Equal(t, "cb-1", strField(t, api.get("answerCallbackQuery")[0], "callback_query_id"))
	assert.Len(t, api.get("editMessageText"), 1)

	// Manual status update through the API.
	code, body = call(http.MethodPatch, "/api/v1/orders/1/status", `{"status": "delivered"}`, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":1,"old_status":"confirmed","new_status":"delivered"}`, body)

	code, _ = call(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func rawField(t *testing.T, body, name string) string {
	t.Helper()
	var out string
	require.NoError(t, jx.DecodeStr(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if string(key) == name {
			out = raw.String()
		}
		return err
	}))
	return out
}

func strField(t *testing.T, body, name string) string {
	t.Helper()
	raw := rawField(t, body, name)
	require.NotEmpty(t, raw, "field %s", name)
	v, err := jx.DecodeStr(raw).Str()
	require.NoError(t, err)
	return v
}
