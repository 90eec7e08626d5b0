package callback

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// Action is what a staff button asks to do with an order.
type Action string

const (
	ActionSuccess Action = "order_success"
	ActionCancel  Action = "order_cancel"
)

// ErrUnknownToken is returned for callback data that is not an order action.
var ErrUnknownToken = errors.New("unknown callback token")

// Token builds the callback data carried by a button.
func Token(a Action, orderID int64) string {
	return string(a) + ":" + strconv.FormatInt(orderID, 10)
}

// ParseToken splits callback data into action and order id. Both
// "order_success:12" and the older "order_success_12" are accepted.
func ParseToken(data string) (Action, int64, error) {
	for _, a := range []Action{ActionSuccess, ActionCancel} {
		rest, ok := strings.CutPrefix(data, string(a))
		if !ok || rest == "" || (rest[0] != ':' && rest[0] != '_') {
			continue
		}
		id, err := strconv.ParseInt(rest[1:], 10, 64)
		if err != nil || id <= 0 {
			return "", 0, errors.Wrapf(ErrUnknownToken, "bad order id in %q", data)
		}
		return a, id, nil
	}
	return "", 0, ErrUnknownToken
}
