// Package telegram is a minimal Telegram Bot API client covering the methods
// the shop bot needs.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

const maxResponseBytes = 4 << 20

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client calls the Bot API for a single bot token.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL overrides the Bot API base URL.
func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTelemetry instruments outgoing requests with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(c *Client) {
		c.http = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					// The path embeds the token.
					return "telegram." + r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
				}),
			),
		}
	}
}

// New returns a Client for token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultAPIURL,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendMessageRequest is the input of SendMessage.
type SendMessageRequest struct {
	ChatID      string
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// SendMessage posts a message and returns it as stored by Telegram.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", func(e *jx.Encoder) {
		e.FieldStart("chat_id")
		encodeChatID(e, req.ChatID)
		encodeText(e, req.Text, req.ParseMode, req.ReplyMarkup)
	}, msg.Decode)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageTextRequest is the input of EditMessageText.
type EditMessageTextRequest struct {
	ChatID      string
	MessageID   int64
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// EditMessageText replaces the text of a sent message. Omitting ReplyMarkup
// removes the inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	return c.call(ctx, "editMessageText", func(e *jx.Encoder) {
		e.FieldStart("chat_id")
		encodeChatID(e, req.ChatID)
		e.FieldStart("message_id")
		e.Int64(req.MessageID)
		encodeText(e, req.Text, req.ParseMode, req.ReplyMarkup)
	}, nil)
}

// AnswerCallbackQuery acknowledges a button press. text may be empty.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", func(e *jx.Encoder) {
		e.FieldStart("callback_query_id")
		e.Str(queryID)
		if text != "" {
			e.FieldStart("text")
			e.Str(text)
		}
	}, nil)
}

// SetWebhook registers webhookURL. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", func(e *jx.Encoder) {
		e.FieldStart("url")
		e.Str(webhookURL)
		if secret != "" {
			e.FieldStart("secret_token")
			e.Str(secret)
		}
		e.FieldStart("allowed_updates")
		e.ArrStart()
		e.Str("message")
		e.Str("callback_query")
		e.ArrEnd()
	}, nil)
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", nil, nil)
}

// GetWebhookInfo returns the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", nil, info.Decode); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, u.Decode); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with IDs >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", func(e *jx.Encoder) {
		e.FieldStart("offset")
		e.Int64(offset)
		e.FieldStart("timeout")
		e.Int(int(timeout.Seconds()))
	}, func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			var u Update
			if err := u.Decode(d); err != nil {
				return err
			}
			updates = append(updates, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func encodeText(e *jx.Encoder, text, parseMode string, markup *InlineKeyboardMarkup) {
	e.FieldStart("text")
	e.Str(text)
	if parseMode != "" {
		e.FieldStart("parse_mode")
		e.Str(parseMode)
	}
	if markup != nil {
		e.FieldStart("reply_markup")
		markup.Encode(e)
	}
}

// call posts a JSON object built by params to method and decodes the result
// field with result. Either may be nil.
func (c *Client) call(ctx context.Context, method string, params func(e *jx.Encoder), result func(d *jx.Decoder) error) error {
	var e jx.Encoder
	e.ObjStart()
	if params != nil {
		params(&e)
	}
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrapf(stripURL(err), "telegram %s", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(stripURL(err), "telegram %s", method)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrapf(err, "telegram %s: read body", method)
	}

	var (
		ok      bool
		apiErr  = &APIError{Method: method, Code: resp.StatusCode}
		rawBody []byte
	)
	err = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "ok":
			v, err := d.Bool()
			ok = v
			return err
		case "error_code":
			v, err := d.Int()
			apiErr.Code = v
			return err
		case "description":
			v, err := d.Str()
			apiErr.Description = v
			return err
		case "result":
			raw, err := d.Raw()
			rawBody = raw
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "telegram %s: decode response (status %d)", method, resp.StatusCode)
	}
	if !ok {
		return apiErr
	}
	if result == nil || rawBody == nil {
		return nil
	}
	if err := result(jx.DecodeBytes(rawBody)); err != nil {
		return errors.Wrapf(err, "telegram %s: decode result", method)
	}
	return nil
}

// stripURL drops the request URL from transport errors so the token does not
// end up in logs.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
