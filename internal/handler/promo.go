package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/money"
)

// ValidatePromo handles POST /api/v1/promos/validate. An unusable code is
// not an HTTP error: the response carries is_valid=false and the reason.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.orders.PreviewPromo(r.Context(), req.Code, lines(req.Items))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("is_valid")
		e.Bool(p.Valid)
		if p.Valid {
			e.FieldStart("promo")
			e.ObjStart()
			e.FieldStart("code")
			e.Str(p.Promo.Code)
			e.FieldStart("percent")
			e.Str(p.Promo.Percent.StringFixed(2))
			e.ObjEnd()
		} else {
			code, cause := order.ErrorCode(p.Err)
			e.FieldStart("error_code")
			e.Str(code)
			e.FieldStart("message")
			e.Str(sentence(cause.Error()))
		}
		e.FieldStart("subtotal")
		e.Str(money.String(p.Subtotal))
		e.FieldStart("discount")
		e.Str(money.String(p.Discount))
		e.FieldStart("total")
		e.Str(money.String(p.Total))
		e.ObjEnd()
	})
}
