package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		entity  EntityName
		raw     string
		fields  []string
		wantErr error
	}{
		{
			name:   "cliente fields",
			entity: EntityCliente,
			raw:    `{"nombre":"Ana","telefono":"809-555-0101"}`,
			fields: []string{"nombre", "telefono"},
		},
		{
			name:   "venta with items",
			entity: EntityVenta,
			raw:    `{"numero_factura":"F-001","total":15000,"items":[{"producto_id":"p1","cantidad":2,"precio_unitario":7500}]}`,
			fields: []string{"items", "numero_factura", "total"},
		},
		{
			name:   "null document is empty",
			entity: EntityCliente,
			raw:    `null`,
			fields: []string{},
		},
		{
			name:    "unknown field",
			entity:  EntityCliente,
			raw:     `{"nombre":"Ana","apodo":"A"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "fractional money",
			entity:  EntityVenta,
			raw:     `{"total":150.25}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "trailing document",
			entity:  EntityCliente,
			raw:     `{"nombre":"Ana"}{"nombre":"Bob"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unknown entity",
			entity:  EntityName("producto"),
			raw:     `{"nombre":"x"}`,
			wantErr: ErrUnknownEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload(tt.entity, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fields, p.Fields())
		})
	}
}

func TestPayload_NaturalKey(t *testing.T) {
	p, err := ParsePayload(EntityCliente, json.RawMessage(`{"cedula_rnc":"001-1234567-8"}`))
	require.NoError(t, err)

	key, ok := p.NaturalKey()
	assert.True(t, ok)
	assert.Equal(t, "001-1234567-8", key)
	assert.Equal(t, EntityCliente, p.Entity())

	_, ok = Payload{}.NaturalKey()
	assert.False(t, ok)
}

func TestPayload_ValuesKeepIntegers(t *testing.T) {
	p, err := ParsePayload(EntityVenta, json.RawMessage(`{"total":9007199254740993}`))
	require.NoError(t, err)

	values, err := p.Values()
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), values["total"])
}

func TestPayload_MarshalEmpty(t *testing.T) {
	raw, err := json.Marshal(Payload{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
	assert.True(t, Payload{}.Empty())
}
