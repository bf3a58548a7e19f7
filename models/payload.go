package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// EntityName identifies a governed entity type.
type EntityName string

const (
	EntityCliente EntityName = "cliente"
	EntityVenta   EntityName = "venta"
)

// Valid reports whether e is a governed entity type.
func (e EntityName) Valid() bool {
	return e == EntityCliente || e == EntityVenta
}

// NaturalKeyField returns the payload field that must be unique among live
// records of the entity.
func (e EntityName) NaturalKeyField() string {
	switch e {
	case EntityCliente:
		return "cedula_rnc"
	case EntityVenta:
		return "numero_factura"
	}
	return ""
}

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEntity  = errors.New("unknown entity")
)

// ClientePayload carries the fields of a customer record. Nil fields are
// absent from the mutation.
type ClientePayload struct {
	Nombre        *string `json:"nombre,omitempty"`
	CedulaRNC     *string `json:"cedula_rnc,omitempty"`
	Telefono      *string `json:"telefono,omitempty"`
	Email         *string `json:"email,omitempty"`
	Direccion     *string `json:"direccion,omitempty"`
	LimiteCredito *int64  `json:"limite_credito,omitempty"`
	SucursalID    *string `json:"sucursal_id,omitempty"`
}

// VentaItem is one line of a sale. Amounts are integer cents.
type VentaItem struct {
	ProductoID     string `json:"producto_id"`
	Cantidad       int64  `json:"cantidad"`
	PrecioUnitario int64  `json:"precio_unitario"`
}

// VentaPayload carries the fields of a sale record.
type VentaPayload struct {
	NumeroFactura *string      `json:"numero_factura,omitempty"`
	ClienteID     *string      `json:"cliente_id,omitempty"`
	SucursalID    *string      `json:"sucursal_id,omitempty"`
	CajaID        *string      `json:"caja_id,omitempty"`
	Fecha         *string      `json:"fecha,omitempty"`
	Estado        *string      `json:"estado,omitempty"`
	Total         *int64       `json:"total,omitempty"`
	Items         *[]VentaItem `json:"items,omitempty"`
}

// Payload is a tagged variant: exactly one of Cliente and Venta is set for a
// non-empty payload.
type Payload struct {
	Cliente *ClientePayload
	Venta   *VentaPayload
}

// ParsePayload strictly decodes raw into the variant for entity. Unknown
// fields, type mismatches and fractional numbers are rejected. An empty or
// null document yields an empty payload.
func ParsePayload(entity EntityName, raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{}, nil
	}

	switch entity {
	case EntityCliente:
		var p ClientePayload
		if err := decodeStrict(trimmed, &p); err != nil {
			return Payload{}, err
		}
		return Payload{Cliente: &p}, nil
	case EntityVenta:
		var p VentaPayload
		if err := decodeStrict(trimmed, &p); err != nil {
			return Payload{}, err
		}
		return Payload{Venta: &p}, nil
	}
	return Payload{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after document", ErrInvalidPayload)
	}
	return nil
}

// Entity returns the entity type the payload was parsed for, or "" when empty.
func (p Payload) Entity() EntityName {
	switch {
	case p.Cliente != nil:
		return EntityCliente
	case p.Venta != nil:
		return EntityVenta
	}
	return ""
}

// MarshalJSON encodes the set variant; an empty payload encodes as {}.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Cliente != nil:
		return json.Marshal(p.Cliente)
	case p.Venta != nil:
		return json.Marshal(p.Venta)
	}
	return []byte("{}"), nil
}

// Values returns the present fields as a generic document. Numbers are kept
// as json.Number so callers never see floats.
func (p Payload) Values() (map[string]any, error) {
	raw, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	values := make(map[string]any)
	if err = dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return values, nil
}

// Fields returns the sorted names of the present fields.
func (p Payload) Fields() []string {
	values, err := p.Values()
	if err != nil {
		return nil
	}
	fields := make([]string, 0, len(values))
	for k := range values {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Empty reports whether no field is present.
func (p Payload) Empty() bool {
	return len(p.Fields()) == 0
}

// NaturalKey returns the natural key value carried by the payload, if any.
func (p Payload) NaturalKey() (string, bool) {
	switch {
	case p.Cliente != nil && p.Cliente.CedulaRNC != nil:
		return *p.Cliente.CedulaRNC, true
	case p.Venta != nil && p.Venta.NumeroFactura != nil:
		return *p.Venta.NumeroFactura, true
	}
	return "", false
}
