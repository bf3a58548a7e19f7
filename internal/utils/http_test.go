package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"key": "value"}

	n, err := WriteJSON(w, data, http.StatusOK)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n == 0 {
		t.Error("expected non-zero bytes written")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}

	expected, _ := json.Marshal(data)
	if w.Body.String() != string(expected) {
		t.Errorf("expected body %s, got %s", expected, w.Body.String())
	}
}

func TestWriteJSON_InvalidData(t *testing.T) {
	w := httptest.NewRecorder()

	// channels cannot be marshaled to JSON
	_, err := WriteJSON(w, make(chan int), http.StatusOK)

	if err == nil {
		t.Fatal("expected error for non-serializable data, got nil")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, "conflict is already resolved", http.StatusConflict)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if w.Body.String() != `{"error":"conflict is already resolved"}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Type string `json:"type"`
	}

	tests := []struct {
		name    string
		input   string
		limit   int64
		want    string
		wantErr bool
	}{
		{name: "valid", input: `{"type":"full"}`, limit: 1024, want: "full"},
		{name: "no limit", input: `{"type":"initial"}`, limit: 0, want: "initial"},
		{name: "unknown field", input: `{"type":"full","extra":1}`, limit: 1024, wantErr: true},
		{name: "malformed", input: `{"type":`, limit: 1024, wantErr: true},
		{name: "too large", input: `{"type":"incremental"}`, limit: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got body
			n, err := DecodeJSON(strings.NewReader(tt.input), &got, tt.limit)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got.Type != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Type)
			}
			if n != int64(len(tt.input)) {
				t.Errorf("expected %d bytes read, got %d", len(tt.input), n)
			}
		})
	}
}
