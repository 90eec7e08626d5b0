package handler

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequests(t *testing.T) {
	for _, tt := range []struct {
		name string
		body string
		dst  decodable
		want decodable
	}{
		{
			name: "CreateOrder",
			body: `{"items": [{"product_id": 2, "qty": 3}], "full_name": "Aziza", "phone_number": "+998901234567",
				"telegram_username": null, "payment_method": "card", "promo_code": "WELCOME10", "comment": "after 6pm", "extra": {"a": 1}}`,
			dst: &createOrderRequest{},
			want: &createOrderRequest{
				Items:         []cartItem{{ProductID: 2, Qty: 3}},
				FullName:      "Aziza",
				PhoneNumber:   "+998901234567",
				PaymentMethod: "card",
				PromoCode:     "WELCOME10",
				Comment:       "after 6pm",
			},
		},
		{
			name: "ValidatePromo",
			body: `{"code": "welcome10", "items": [{"product_id": 1, "qty": 1}, {"product_id": 5, "qty": 2}]}`,
			dst:  &validatePromoRequest{},
			want: &validatePromoRequest{
				Code:  "welcome10",
				Items: []cartItem{{ProductID: 1, Qty: 1}, {ProductID: 5, Qty: 2}},
			},
		},
		{
			name: "UpdateStatus",
			body: `{"note": "called", "status": "contacted"}`,
			dst:  &updateStatusRequest{},
			want: &updateStatusRequest{Status: "contacted"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.dst.Decode(jx.DecodeStr(tt.body)))
			assert.Equal(t, tt.want, tt.dst)
		})
	}
}

func TestDecodeRequests_ReportsField(t *testing.T) {
	var req createOrderRequest
	err := req.Decode(jx.DecodeStr(`{"full_name": "A", "phone_number": 42}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone_number")
	assert.Equal(t, "A", req.FullName)
}
