package adapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var statusErrors = map[int]error{
	http.StatusBadRequest:            ErrBadRequest,
	http.StatusUnauthorized:          ErrUnauthorized,
	http.StatusForbidden:             ErrForbidden,
	http.StatusNotFound:              ErrNotFound,
	http.StatusConflict:              ErrSessionClosed,
	http.StatusRequestEntityTooLarge: ErrPayloadTooLarge,
	http.StatusUnprocessableEntity:   ErrUnprocessable,
	http.StatusTooManyRequests:       ErrDeviceBusy,
	http.StatusInternalServerError:   ErrInternalServerError,
	http.StatusBadGateway:            ErrServerUnavailable,
	http.StatusServiceUnavailable:    ErrServerUnavailable,
	http.StatusGatewayTimeout:        ErrServerUnavailable,
}

// mapHTTPError turns a non-2xx response into the sentinel of its status,
// annotated with the "error" field of the body. 2xx yields nil.
func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	msg := serverMessage(resp.Body())
	if sentinel, ok := statusErrors[code]; ok {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("http %d: %s", code, msg)
}

func serverMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if gjson.Valid(text) {
		if msg := gjson.Get(text, "error"); msg.Exists() {
			return msg.String()
		}
	}
	return text
}
