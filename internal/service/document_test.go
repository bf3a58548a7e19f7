package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/MKhiriev/go-pos-sync/models"
)

func mustPayload(t *testing.T, entity models.EntityName, raw string) models.Payload {
	t.Helper()
	p, err := models.ParsePayload(entity, json.RawMessage(raw))
	require.NoError(t, err)
	return p
}

func TestPatchDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		payload string
		check   map[string]string
	}{
		{
			name:    "overwrites present fields only",
			doc:     `{"nombre":"Ana","telefono":"809-555-0100","email":"ana@example.com"}`,
			payload: `{"telefono":"809-555-0199"}`,
			check:   map[string]string{"nombre": "Ana", "telefono": "809-555-0199", "email": "ana@example.com"},
		},
		{
			name:    "adds new fields",
			doc:     `{"nombre":"Ana"}`,
			payload: `{"direccion":"Calle 5","limite_credito":150000}`,
			check:   map[string]string{"nombre": "Ana", "direccion": "Calle 5", "limite_credito": "150000"},
		},
		{
			name:    "empty document",
			doc:     ``,
			payload: `{"nombre":"Luis"}`,
			check:   map[string]string{"nombre": "Luis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := patchDocument(json.RawMessage(tt.doc), mustPayload(t, models.EntityCliente, tt.payload))
			require.NoError(t, err)
			require.True(t, gjson.ValidBytes(got))
			for field, want := range tt.check {
				assert.Equal(t, want, gjson.GetBytes(got, field).String(), field)
			}
		})
	}
}

func TestPatchDocument_KeepsIntegerItems(t *testing.T) {
	doc := json.RawMessage(`{"numero_factura":"F-001","total":1000}`)
	payload := mustPayload(t, models.EntityVenta,
		`{"items":[{"producto_id":"p1","cantidad":2,"precio_unitario":750}],"total":1500}`)

	got, err := patchDocument(doc, payload)
	require.NoError(t, err)

	assert.Equal(t, int64(1500), gjson.GetBytes(got, "total").Int())
	assert.Equal(t, "750", gjson.GetBytes(got, "items.0.precio_unitario").Raw)
	assert.Equal(t, "F-001", gjson.GetBytes(got, "numero_factura").String())
}

func TestDisjoint(t *testing.T) {
	assert.True(t, disjoint([]string{"telefono"}, []string{"email", "direccion"}))
	assert.False(t, disjoint([]string{"telefono", "email"}, []string{"email"}))
	assert.True(t, disjoint(nil, []string{"email"}))
}
