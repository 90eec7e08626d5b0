package bot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/telegram"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []telegram.SendMessageRequest
	sendErr  error
	webhook  telegram.WebhookInfo
	updates  [][]telegram.Update
	offsets  []int64
	deleted  bool
	pollDone chan struct{}
}

func (f *fakeAPI) SendMessage(_ context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeAPI) GetWebhookInfo(context.Context) (*telegram.WebhookInfo, error) {
	info := f.webhook
	return &info, nil
}

func (f *fakeAPI) DeleteWebhook(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
	return nil
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.updates) > 0 {
		batch := f.updates[0]
		f.updates = f.updates[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	if f.pollDone != nil {
		close(f.pollDone)
		f.pollDone = nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeAPI) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type fakeCallbacks struct {
	got []string
}

func (f *fakeCallbacks) Handle(_ context.Context, q *telegram.CallbackQuery) {
	f.got = append(f.got, q.Data)
}

type fakeStats struct {
	stats notification.Stats
}

func (f fakeStats) Stats(context.Context) (notification.Stats, error) { return f.stats, nil }

var configured = telegram.ChannelConfig{Token: "t", ChatID: "-1001", Enabled: true}

func message(text string) telegram.Update {
	return telegram.Update{UpdateID: 1, Message: &telegram.Message{MessageID: 1, Chat: telegram.Chat{ID: 9}, Text: text}}
}

func TestRouter_Commands(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		webhook telegram.WebhookInfo
		text    string
		want    []string
		notWant []string
	}{
		{
			name: "start with mini app",
			cfg:  Config{Channel: configured, MiniAppURL: "https://shop.example"},
			text: "/start",
			want: []string{"Welcome to MDIST WEAR", "open our shop"},
		},
		{
			name: "start without mini app",
			cfg:  Config{Channel: configured},
			text: "/start@merch_bot payload",
			want: []string{"Mini App is currently being set up"},
		},
		{
			name: "help",
			text: "/help",
			want: []string{"/status - Bot status", "/health"},
		},
		{
			name: "status not configured",
			text: "/status",
			want: []string{"Bot is not configured"},
		},
		{
			name:    "status with webhook",
			cfg:     Config{Channel: configured},
			webhook: telegram.WebhookInfo{URL: "https://api.example/telegram/webhook", PendingUpdateCount: 2},
			text:    "/status",
			want:    []string{"✅ Active", "✅ Set", "<code>-1001</code>", "https://api.example/telegram/webhook", "<b>Pending:</b> 2"},
		},
		{
			name:    "status without webhook",
			cfg:     Config{Channel: telegram.ChannelConfig{Token: "t", ChatID: "-1001"}},
			text:    "/status",
			want:    []string{"❌ Inactive", "⚠️ Not set"},
			notWant: []string{"Pending"},
		},
		{
			name: "unknown",
			text: "/refund",
			want: []string{"Unknown command"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{webhook: tt.webhook}
			r := NewRouter(tt.cfg, api, &fakeCallbacks{}, fakeStats{}, nil, nil)

			require.NoError(t, r.HandleUpdate(context.Background(), message(tt.text)))

			require.Len(t, api.sent, 1)
			assert.Equal(t, "9", api.sent[0].ChatID)
			for _, w := range tt.want {
				assert.Contains(t, api.sent[0].Text, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, api.sent[0].Text, w)
			}
		})
	}
}

func TestRouter_StartButton(t *testing.T) {
	api := &fakeAPI{}
	r := NewRouter(Config{MiniAppURL: "https://shop.example"}, api, &fakeCallbacks{}, fakeStats{}, nil, nil)

	require.NoError(t, r.HandleUpdate(context.Background(), message("/start")))
	require.NotNil(t, api.sent[0].ReplyMarkup)
	assert.Equal(t, "https://shop.example", api.sent[0].ReplyMarkup.Rows[0][0].URL)
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok","timestamp":"2026-10-17T10:00:00Z"}`)
	}))
	defer srv.Close()

	api := &fakeAPI{}
	stats := fakeStats{stats: notification.Stats{Total: 5, Sent: 3, Failed: 2}}
	r := NewRouter(Config{Channel: configured, PublicURL: srv.URL + "/"}, api, &fakeCallbacks{}, stats, srv.Client(), nil)

	require.NoError(t, r.HandleUpdate(context.Background(), message("/health")))
	text := api.lastText()
	for _, w := range []string{"<b>API:</b> ✅ OK", "Total: 5", "Sent: 3", "Failed: 2", "API Time: 2026-10-17T10:00:00Z"} {
		assert.Contains(t, text, w)
	}
}

func TestRouter_HealthAPIDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	api := &fakeAPI{}
	r := NewRouter(Config{PublicURL: srv.URL}, api, &fakeCallbacks{}, fakeStats{}, srv.Client(), nil)

	require.NoError(t, r.HandleUpdate(context.Background(), message("/health")))
	assert.Contains(t, api.lastText(), "❌ Error 503")
	assert.NotContains(t, api.lastText(), "API Time")
}

func TestRouter_RoutesCallbacksAndIgnoresText(t *testing.T) {
	api := &fakeAPI{}
	cb := &fakeCallbacks{}
	r := NewRouter(Config{}, api, cb, fakeStats{}, nil, nil)

	require.NoError(t, r.HandleUpdate(context.Background(), telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{ID: "x", Data: "order_success:1"},
	}))
	require.NoError(t, r.HandleUpdate(context.Background(), message("hello")))
	require.NoError(t, r.HandleUpdate(context.Background(), telegram.Update{UpdateID: 3}))

	assert.Equal(t, []string{"order_success:1"}, cb.got)
	assert.Empty(t, api.sent)
}

func TestRouter_ReplyError(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("bot was blocked by the user")}
	r := NewRouter(Config{}, api, &fakeCallbacks{}, fakeStats{}, nil, nil)

	err := r.HandleUpdate(context.Background(), message("/help"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "reply to /help"))
}

func TestPoller(t *testing.T) {
	api := &fakeAPI{
		updates: [][]telegram.Update{
			{message("/help"), {UpdateID: 5, Message: &telegram.Message{Chat: telegram.Chat{ID: 9}, Text: "/refund"}}},
		},
		pollDone: make(chan struct{}),
	}
	done := api.pollDone
	r := NewRouter(Config{}, api, &fakeCallbacks{}, fakeStats{}, nil, nil)
	p := NewPoller(api, r, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	<-done
	cancel()
	require.NoError(t, <-errc)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.deleted)
	assert.Equal(t, []int64{0, 6}, api.offsets)
	assert.Len(t, api.sent, 2)
}
