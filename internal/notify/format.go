package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/xenking/merchshop/internal/callback"
	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/money"
	"github.com/xenking/merchshop/internal/telegram"
)

const separator = "━━━━━━━━━━━━━━━━━━━━"

// FormatOrder renders the staff group message for o as Telegram HTML.
func FormatOrder(o *order.Order, adminURLPrefix string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🛒 <b>NEW ORDER #%d</b>\n%s\n\n", o.ID, separator)

	fmt.Fprintf(&b, "👤 <b>Client:</b> %s\n", html.EscapeString(o.FullName))
	fmt.Fprintf(&b, "📞 <b>Phone:</b> %s\n", html.EscapeString(o.PhoneNumber))
	if o.TelegramUsername != "" {
		fmt.Fprintf(&b, "💬 <b>Telegram:</b> @%s\n", html.EscapeString(o.TelegramUsername))
	}

	b.WriteString("\n🛍️ <b>Items:</b>\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "• %s × %d — %s UZS\n",
			html.EscapeString(it.NameSnapshot), it.Qty, money.Display(it.LineTotal))
	}

	fmt.Fprintf(&b, "\n%s\n", separator)
	fmt.Fprintf(&b, "💰 <b>Subtotal:</b> %s UZS\n", money.Display(o.Subtotal))
	if o.PromoID != nil {
		fmt.Fprintf(&b, "🎁 <b>Promo:</b> %s (-%s UZS)\n",
			html.EscapeString(o.PromoCode), money.Display(o.DiscountTotal))
	}
	fmt.Fprintf(&b, "💳 <b>Total:</b> <b>%s UZS</b>\n\n", money.Display(o.Total))

	if o.Comment != "" {
		fmt.Fprintf(&b, "📝 <b>Comment:</b> %s\n", html.EscapeString(o.Comment))
	}
	fmt.Fprintf(&b, "💳 <b>Payment:</b> %s\n", o.PaymentMethod.Label())
	fmt.Fprintf(&b, "📦 <b>Status:</b> %s\n\n", o.Status.Label())

	fmt.Fprintf(&b, "🔗 <a href='%s'>Manage order</a>", html.EscapeString(AdminURL(adminURLPrefix, o.ID)))
	return b.String()
}

// AdminURL is the management page of an order.
func AdminURL(prefix string, orderID int64) string {
	return fmt.Sprintf("%s/admin/orders/order/%d/change/", strings.TrimRight(prefix, "/"), orderID)
}

// Keyboard returns the two staff action buttons for an order.
func Keyboard(orderID int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{Rows: [][]telegram.InlineKeyboardButton{{
		{Text: "✅ Close as successful", CallbackData: callback.Token(callback.ActionSuccess, orderID)},
		{Text: "❌ Close as canceled", CallbackData: callback.Token(callback.ActionCancel, orderID)},
	}}}
}
