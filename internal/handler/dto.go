package handler

import (
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/merchshop/internal/domain/order"
)

type cartItem struct {
	ProductID int64 `json:"product_id" validate:"min=1"`
	Qty       int   `json:"qty" validate:"min=1,max=10000"` // order.MaxQty
}

type createOrderRequest struct {
	Items            []cartItem `json:"items" validate:"dive"`
	FullName         string     `json:"full_name" validate:"required,max=255"`
	PhoneNumber      string     `json:"phone_number" validate:"required,max=20"`
	TelegramUsername string     `json:"telegram_username" validate:"max=100"`
	PaymentMethod    string     `json:"payment_method" validate:"required,oneof=cash card"`
	PromoCode        string     `json:"promo_code" validate:"max=50"`
	Comment          string     `json:"comment"`
}

type validatePromoRequest struct {
	Code  string     `json:"code" validate:"required,max=50"`
	Items []cartItem `json:"items" validate:"dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func lines(items []cartItem) []order.Line {
	out := make([]order.Line, len(items))
	for i, it := range items {
		out[i] = order.Line{ProductID: it.ProductID, Qty: it.Qty}
	}
	return out
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeItems(d *jx.Decoder) ([]cartItem, error) {
	var items []cartItem
	err := d.Arr(func(d *jx.Decoder) error {
		var it cartItem
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "product_id":
				it.ProductID, err = d.Int64()
			case "qty":
				it.Qty, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
		items = append(items, it)
		return err
	})
	return items, err
}

func (r *createOrderRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "items":
			r.Items, err = decodeItems(d)
		case "full_name":
			r.FullName, err = d.Str()
		case "phone_number":
			r.PhoneNumber, err = d.Str()
		case "telegram_username":
			r.TelegramUsername, err = optStr(d)
		case "payment_method":
			r.PaymentMethod, err = d.Str()
		case "promo_code":
			r.PromoCode, err = optStr(d)
		case "comment":
			r.Comment, err = optStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

func (r *validatePromoRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			r.Code, err = d.Str()
		case "items":
			r.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

func (r *updateStatusRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "status":
			r.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

type decodable interface {
	Decode(d *jx.Decoder) error
}

// decodeAndValidate reads the body into dst and checks its struct tags. On
// failure it writes a VALIDATION_ERROR response and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst decodable) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, order.CodeValidation, "Invalid request data",
			map[string][]string{"body": {err.Error()}})
		return false
	}
	if err := dst.Decode(jx.DecodeBytes(body)); err != nil {
		writeError(w, http.StatusBadRequest, order.CodeValidation, "Invalid request data",
			map[string][]string{"body": {"Malformed JSON: " + err.Error()}})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, order.CodeValidation, "Invalid request data",
				map[string][]string{"body": {err.Error()}})
			return false
		}
		writeError(w, http.StatusBadRequest, order.CodeValidation, "Invalid request data", fieldErrors(verrs))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors turns validator errors into per-field messages keyed by the
// JSON path, e.g. "items[0].qty".
func fieldErrors(verrs validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		out[path] = append(out[path], fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	default:
		return fmt.Sprintf("Failed on %q.", fe.Tag())
	}
}

func encodeDetails(e *jx.Encoder, details map[string][]string) {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.ArrStart()
		for _, msg := range details[k] {
			e.Str(msg)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}
