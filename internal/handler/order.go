package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/money"
)

// CreateOrder handles POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Lines:            lines(req.Items),
		FullName:         req.FullName,
		PhoneNumber:      req.PhoneNumber,
		TelegramUsername: req.TelegramUsername,
		PaymentMethod:    order.PaymentMethod(req.PaymentMethod),
		PromoCode:        req.PromoCode,
		Comment:          req.Comment,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.String("total", money.String(o.Total)),
	)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order_id")
		e.Int64(o.ID)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.FieldStart("subtotal")
		e.Str(money.String(o.Subtotal))
		e.FieldStart("discount_total")
		e.Str(money.String(o.DiscountTotal))
		e.FieldStart("total")
		e.Str(money.String(o.Total))
		e.FieldStart("created_at")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	})
}

// GetOrder handles GET /api/v1/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeOrderNotFound(w, id)
			return
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateStatus handles PATCH /api/v1/orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	next := order.Status(req.Status)
	old, err := h.orders.UpdateStatus(r.Context(), id, next)
	if err != nil {
		var invalid *order.InvalidStatusError
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeOrderNotFound(w, id)
		case errors.As(err, &invalid):
			allowed := make([]string, 0, len(invalid.Allowed()))
			for _, s := range invalid.Allowed() {
				allowed = append(allowed, string(s))
			}
			writeError(w, http.StatusBadRequest, order.CodeInvalidStatus,
				fmt.Sprintf("Invalid status %q", invalid.Value),
				map[string][]string{"allowed": allowed})
		default:
			writeDomainError(w, r, err)
		}
		return
	}
	zctx.From(r.Context()).Info("Order status updated",
		zap.Int64("order_id", id),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(next)),
	)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(id)
		e.FieldStart("old_status")
		e.Str(string(old))
		e.FieldStart("new_status")
		e.Str(string(next))
		e.ObjEnd()
	})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, order.CodeValidation, "Invalid request data",
			map[string][]string{"id": {"A valid positive integer is required."}})
		return 0, false
	}
	return id, true
}

func writeOrderNotFound(w http.ResponseWriter, id int64) {
	writeError(w, http.StatusNotFound, order.CodeOrderNotFound,
		fmt.Sprintf("Order with ID %d not found", id), nil)
}

func encodeOptStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("full_name")
	e.Str(o.FullName)
	e.FieldStart("phone_number")
	e.Str(o.PhoneNumber)
	e.FieldStart("telegram_username")
	encodeOptStr(e, o.TelegramUsername)
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("promo_code")
	encodeOptStr(e, o.PromoCode)
	e.FieldStart("subtotal")
	e.Str(money.String(o.Subtotal))
	e.FieldStart("discount_total")
	e.Str(money.String(o.DiscountTotal))
	e.FieldStart("total")
	e.Str(money.String(o.Total))
	e.FieldStart("comment")
	encodeOptStr(e, o.Comment)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("name_snapshot")
		e.Str(it.NameSnapshot)
		e.FieldStart("price_snapshot")
		e.Str(money.String(it.PriceSnapshot))
		e.FieldStart("qty")
		e.Int(it.Qty)
		e.FieldStart("line_total")
		e.Str(money.String(it.LineTotal))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updated_at")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
