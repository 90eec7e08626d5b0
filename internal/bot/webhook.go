package bot

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/telegram"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// Webhook returns the handler Telegram posts updates to. Processing errors
// are reported in the body with status 200 so Telegram does not redeliver
// the update.
func Webhook(r *Router, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		lg := zctx.From(req.Context())

		if secret != "" && subtle.ConstantTimeCompare([]byte(req.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			lg.Warn("Webhook secret mismatch")
			writeResult(w, http.StatusForbidden, "error", "Invalid secret token")
			return
		}

		body, err := io.ReadAll(io.LimitReader(req.Body, maxUpdateBytes))
		if err != nil {
			writeResult(w, http.StatusOK, "error", "Invalid update data")
			return
		}
		u, err := telegram.DecodeUpdate(body)
		if err != nil {
			lg.Warn("Invalid update data", zap.Error(err))
			writeResult(w, http.StatusOK, "error", "Invalid update data")
			return
		}

		if err := r.HandleUpdate(req.Context(), u); err != nil {
			lg.Error("Process update", zap.Int64("update_id", u.UpdateID), zap.Error(err))
			writeResult(w, http.StatusOK, "error", err.Error())
			return
		}
		writeResult(w, http.StatusOK, "ok", "Update processed")
	})
}

func writeResult(w http.ResponseWriter, code int, status, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
