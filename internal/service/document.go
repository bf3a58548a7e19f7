package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MKhiriev/go-pos-sync/models"
)

// patchDocument writes every field present in payload onto doc. Fields the
// payload does not carry keep their server value.
func patchDocument(doc json.RawMessage, payload models.Payload) (json.RawMessage, error) {
	values, err := payload.Values()
	if err != nil {
		return nil, err
	}

	patched := []byte(doc)
	if len(patched) == 0 || !gjson.ValidBytes(patched) {
		patched = []byte("{}")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, err := json.Marshal(values[k])
		if err != nil {
			return nil, fmt.Errorf("error encoding field %q: %w", k, err)
		}
		patched, err = sjson.SetRawBytes(patched, k, raw)
		if err != nil {
			return nil, fmt.Errorf("error patching field %q: %w", k, err)
		}
	}
	return patched, nil
}

// disjoint reports whether a and b share no element.
func disjoint(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		set[f] = struct{}{}
	}
	for _, f := range b {
		if _, ok := set[f]; ok {
			return false
		}
	}
	return true
}
