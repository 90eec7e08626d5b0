// Package handler serves the shop's HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/domain/order"
)

const (
	codeInternal = "INTERNAL_ERROR"
	maxBodyBytes = 1 << 20
)

// Orders is the order service used by the API.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	PreviewPromo(ctx context.Context, code string, lines []order.Line) (*order.Preview, error)
	Get(ctx context.Context, id int64) (*order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) (order.Status, error)
}

// Handler serves order, promo and health endpoints.
type Handler struct {
	orders   Orders
	validate *validator.Validate
	now      func() time.Time
}

// New returns a Handler backed by orders.
func New(orders Orders) *Handler {
	return &Handler{
		orders:   orders,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/orders", h.CreateOrder)
	mux.HandleFunc("POST /api/v1/orders/{$}", h.CreateOrder)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /api/v1/orders/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/v1/promos/validate", h.ValidatePromo)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// Health reports that the API is serving, with the server time.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str("ok")
		e.FieldStart("timestamp")
		e.Str(h.now().UTC().Format(time.RFC3339))
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {error_code, message, details?}.
func writeError(w http.ResponseWriter, code int, errorCode, message string, details map[string][]string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error_code")
		e.Str(errorCode)
		e.FieldStart("message")
		e.Str(message)
		if len(details) > 0 {
			e.FieldStart("details")
			encodeDetails(e, details)
		}
		e.ObjEnd()
	})
}

// writeDomainError maps business errors to 400/404 and everything else to
// 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, cause := order.ErrorCode(err)
	switch code {
	case "":
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error", nil)
	case order.CodeOrderNotFound:
		writeError(w, http.StatusNotFound, code, "Order not found", nil)
	default:
		writeError(w, http.StatusBadRequest, code, sentence(cause.Error()), nil)
	}
}

// sentence upper-cases the first letter of a Go error message.
func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
