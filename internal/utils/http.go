package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON serializes data to JSON and writes it with statusCode.
//
// It sets the "Content-Type" header to "application/json". If marshaling
// fails, it responds with 500 Internal Server Error and returns a wrapped
// error. The returned int is the number of body bytes written.
func WriteJSON(w http.ResponseWriter, data any, statusCode int) (int, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "error writing data to JSON", http.StatusInternalServerError)
		return 0, fmt.Errorf("error writing data to JSON: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	return w.Write(jsonData)
}

// WriteError writes message as an [ErrorResponse] with statusCode.
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	_, _ = WriteJSON(w, ErrorResponse{Error: message}, statusCode)
}

// ErrRequestBodyTooLarge is returned by DecodeJSON when the body exceeds the
// limit.
var ErrRequestBodyTooLarge = errors.New("request body too large")

// DecodeJSON strictly decodes at most limit bytes of body into v and reports
// how many bytes were read. Unknown fields are rejected; a non-positive
// limit disables the bound.
func DecodeJSON(body io.Reader, v any, limit int64) (int64, error) {
	counter := &countingReader{r: body}
	var r io.Reader = counter
	if limit > 0 {
		r = io.LimitReader(counter, limit+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return counter.n, fmt.Errorf("error reading request body: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return counter.n, ErrRequestBodyTooLarge
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err = dec.Decode(v); err != nil {
		return counter.n, fmt.Errorf("error decoding request body: %w", err)
	}
	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
