package telegram

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ParseModeHTML selects Telegram's HTML message formatting.
const ParseModeHTML = "HTML"

// ChannelConfig identifies the bot and the staff group it posts to. It is
// loaded once at start.
type ChannelConfig struct {
	Token   string
	ChatID  string
	Enabled bool
}

// Configured reports whether both the token and the chat are set.
func (c ChannelConfig) Configured() bool {
	return c.Token != "" && c.ChatID != ""
}

// User is a Telegram user or bot.
type User struct {
	ID        int64
	IsBot     bool
	FirstName string
	Username  string
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64
	Type string
}

// Message is the subset of a Telegram message the shop uses.
type Message struct {
	MessageID int64
	From      *User
	Chat      Chat
	Text      string
}

// CallbackQuery is sent when a user presses an inline keyboard button.
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

// Update is one incoming event from the Bot API.
type Update struct {
	UpdateID      int64
	Message       *Message
	CallbackQuery *CallbackQuery
}

// WebhookInfo describes the currently registered webhook.
type WebhookInfo struct {
	URL                string
	PendingUpdateCount int
	LastErrorMessage   string
}

// WebAppInfo opens a Mini App from a button.
type WebAppInfo struct {
	URL string
}

// InlineKeyboardButton is one button of an inline keyboard. Exactly one of
// CallbackData, URL or WebApp should be set.
type InlineKeyboardButton struct {
	Text         string
	CallbackData string
	URL          string
	WebApp       *WebAppInfo
}

// InlineKeyboardMarkup is a grid of buttons attached to a message.
type InlineKeyboardMarkup struct {
	Rows [][]InlineKeyboardButton
}

// DecodeUpdate parses a raw update as delivered to a webhook or returned by
// getUpdates.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := u.Decode(jx.DecodeBytes(data)); err != nil {
		return Update{}, errors.Wrap(err, "decode update")
	}
	return u, nil
}

func (u *Update) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "update_id":
			v, err := d.Int64()
			u.UpdateID = v
			return err
		case "message":
			u.Message = &Message{}
			return u.Message.Decode(d)
		case "callback_query":
			u.CallbackQuery = &CallbackQuery{}
			return u.CallbackQuery.Decode(d)
		default:
			return d.Skip()
		}
	})
}

func (m *Message) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "message_id":
			v, err := d.Int64()
			m.MessageID = v
			return err
		case "from":
			m.From = &User{}
			return m.From.Decode(d)
		case "chat":
			return m.Chat.Decode(d)
		case "text":
			v, err := d.Str()
			m.Text = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (c *Chat) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Int64()
			c.ID = v
			return err
		case "type":
			v, err := d.Str()
			c.Type = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (u *User) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Int64()
			u.ID = v
			return err
		case "is_bot":
			v, err := d.Bool()
			u.IsBot = v
			return err
		case "first_name":
			v, err := d.Str()
			u.FirstName = v
			return err
		case "username":
			v, err := d.Str()
			u.Username = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (q *CallbackQuery) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			q.ID = v
			return err
		case "from":
			return q.From.Decode(d)
		case "message":
			q.Message = &Message{}
			return q.Message.Decode(d)
		case "data":
			v, err := d.Str()
			q.Data = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (w *WebhookInfo) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "url":
			v, err := d.Str()
			w.URL = v
			return err
		case "pending_update_count":
			v, err := d.Int()
			w.PendingUpdateCount = v
			return err
		case "last_error_message":
			v, err := d.Str()
			w.LastErrorMessage = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (m *InlineKeyboardMarkup) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("inline_keyboard")
	e.ArrStart()
	for _, row := range m.Rows {
		e.ArrStart()
		for _, b := range row {
			b.Encode(e)
		}
		e.ArrEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func (b InlineKeyboardButton) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("text")
	e.Str(b.Text)
	switch {
	case b.WebApp != nil:
		e.FieldStart("web_app")
		e.ObjStart()
		e.FieldStart("url")
		e.Str(b.WebApp.URL)
		e.ObjEnd()
	case b.URL != "":
		e.FieldStart("url")
		e.Str(b.URL)
	default:
		e.FieldStart("callback_data")
		e.Str(b.CallbackData)
	}
	e.ObjEnd()
}

// encodeChatID writes numeric chat IDs as numbers and channel usernames as
// strings.
func encodeChatID(e *jx.Encoder, chatID string) {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		e.Int64(id)
		return
	}
	e.Str(chatID)
}
