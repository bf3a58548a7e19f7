package validators

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-pos-sync/models"
)

// Field name constants used to restrict validation to a subset of checks.
const (
	FieldID           = "id"
	FieldOperation    = "operation"
	FieldEntity       = "entity"
	FieldEntityID     = "entity_id"
	FieldPriority     = "priority"
	FieldClientTS     = "client_ts"
	FieldBaseVersion  = "base_version"
	FieldDependencies = "dependencies"
	FieldChecksum     = "checksum"
	FieldPayload      = "payload"

	// FieldBatchSize checks the number of mutations of a batch.
	FieldBatchSize = "batch_size"

	FieldSessionType = "type"
	FieldResolution  = "resolution"
	FieldOperatorID  = "operator_id"
	FieldConflictID  = "conflict_id"
)

// MutationValidator implements [Validator] for the inbound sync requests:
// MutationInput, BatchRequest, OpenSessionRequest and ResolveConflictRequest.
//
// Both value and pointer forms are accepted. Optional field names restrict
// validation to the named checks; when omitted every check runs.
type MutationValidator struct {
	maxBatchSize int
}

// NewMutationValidator constructs a [MutationValidator]. maxBatchSize <= 0
// disables the batch size check.
func NewMutationValidator(maxBatchSize int) Validator {
	return &MutationValidator{maxBatchSize: maxBatchSize}
}

func (v *MutationValidator) Validate(ctx context.Context, obj any, fields ...string) error {
	switch value := obj.(type) {
	case models.MutationInput:
		return v.validateMutation(ctx, value, fields...)
	case *models.MutationInput:
		return v.validateMutation(ctx, *value, fields...)

	case models.BatchRequest:
		return v.validateBatch(ctx, value, fields...)
	case *models.BatchRequest:
		return v.validateBatch(ctx, *value, fields...)

	case models.OpenSessionRequest:
		return v.validateOpenSession(ctx, value, fields...)
	case *models.OpenSessionRequest:
		return v.validateOpenSession(ctx, *value, fields...)

	case models.ResolveConflictRequest:
		return v.validateResolveConflict(ctx, value, fields...)
	case *models.ResolveConflictRequest:
		return v.validateResolveConflict(ctx, *value, fields...)
	}

	return ErrUnsupportedType
}

// validateMutation checks the envelope of a mutation and, for FieldPayload,
// strictly parses the payload and applies the business rules of its entity.
func (v *MutationValidator) validateMutation(_ context.Context, m models.MutationInput, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldID, FieldOperation, FieldEntity, FieldEntityID, FieldPriority, FieldClientTS,
			FieldBaseVersion, FieldDependencies, FieldChecksum, FieldPayload}
	}

	for _, f := range fields {
		switch f {
		case FieldID:
			if _, err := uuid.Parse(m.ID); err != nil {
				return ErrInvalidMutationID
			}
		case FieldOperation:
			if !m.Operation.Valid() {
				return ErrInvalidOperation
			}
		case FieldEntity:
			if !m.Entity.Valid() {
				return ErrInvalidEntity
			}
		case FieldEntityID:
			if m.EntityID == "" {
				return ErrEmptyEntityID
			}
		case FieldPriority:
			if m.Priority != "" && !m.Priority.Valid() {
				return ErrInvalidPriority
			}
		case FieldClientTS:
			if m.ClientTS.IsZero() {
				return ErrEmptyClientTS
			}
		case FieldBaseVersion:
			hasBase := m.BaseVersion != nil && !m.BaseVersion.IsZero()
			if m.Operation == models.OperationCreate && hasBase {
				return ErrUnexpectedBase
			}
			if m.Operation != models.OperationCreate && !hasBase {
				return ErrMissingBaseVersion
			}
		case FieldDependencies:
			for _, dep := range m.Dependencies {
				if dep == "" {
					return ErrInvalidDependency
				}
			}
		case FieldChecksum:
			if m.Checksum == "" {
				continue
			}
			if raw, err := hex.DecodeString(m.Checksum); err != nil || len(raw) != 32 {
				return ErrInvalidChecksum
			}
		case FieldPayload:
			if err := validatePayload(m); err != nil {
				return err
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func validatePayload(m models.MutationInput) error {
	payload, err := models.ParsePayload(m.Entity, m.Payload)
	if err != nil {
		return err
	}

	switch m.Operation {
	case models.OperationDelete:
		if !payload.Empty() {
			return ErrUnexpectedPayload
		}
		return nil
	case models.OperationUpdate:
		if payload.Empty() {
			return ErrEmptyPayload
		}
	case models.OperationCreate:
		if payload.Empty() {
			return ErrEmptyPayload
		}
	}

	create := m.Operation == models.OperationCreate
	switch {
	case payload.Cliente != nil:
		return validateCliente(*payload.Cliente, create)
	case payload.Venta != nil:
		return validateVenta(*payload.Venta, create)
	}
	return nil
}

func validateCliente(p models.ClientePayload, create bool) error {
	if create && (p.Nombre == nil || p.CedulaRNC == nil) {
		return fmt.Errorf("%w: cliente requires nombre and cedula_rnc", ErrMissingRequiredField)
	}
	if err := nonEmpty(
		namedField{"nombre", p.Nombre},
		namedField{"cedula_rnc", p.CedulaRNC},
		namedField{"sucursal_id", p.SucursalID},
	); err != nil {
		return err
	}
	if p.LimiteCredito != nil && *p.LimiteCredito < 0 {
		return fmt.Errorf("%w: limite_credito", ErrInvalidAmount)
	}
	return nil
}

func validateVenta(p models.VentaPayload, create bool) error {
	if create && (p.NumeroFactura == nil || p.SucursalID == nil || p.Items == nil) {
		return fmt.Errorf("%w: venta requires numero_factura, sucursal_id and items", ErrMissingRequiredField)
	}
	if err := nonEmpty(
		namedField{"numero_factura", p.NumeroFactura},
		namedField{"sucursal_id", p.SucursalID},
		namedField{"caja_id", p.CajaID},
		namedField{"cliente_id", p.ClienteID},
	); err != nil {
		return err
	}
	if p.Total != nil && *p.Total < 0 {
		return fmt.Errorf("%w: total", ErrInvalidAmount)
	}
	if p.Items == nil {
		return nil
	}

	items := *p.Items
	if len(items) == 0 {
		return ErrEmptyItems
	}
	var sum int64
	for i, item := range items {
		if item.ProductoID == "" {
			return fmt.Errorf("%w: items[%d].producto_id", ErrEmptyField, i)
		}
		if item.Cantidad <= 0 {
			return fmt.Errorf("%w: items[%d]", ErrInvalidQuantity, i)
		}
		if item.PrecioUnitario < 0 {
			return fmt.Errorf("%w: items[%d].precio_unitario", ErrInvalidAmount, i)
		}
		sum += item.Cantidad * item.PrecioUnitario
	}
	if p.Total != nil && *p.Total != sum {
		return fmt.Errorf("%w: total %d, items %d", ErrTotalMismatch, *p.Total, sum)
	}
	return nil
}

type namedField struct {
	name  string
	value *string
}

// nonEmpty rejects present string fields holding "".
func nonEmpty(fields ...namedField) error {
	for _, f := range fields {
		if f.value != nil && *f.value == "" {
			return fmt.Errorf("%w: %s", ErrEmptyField, f.name)
		}
	}
	return nil
}

// validateBatch only checks the batch envelope. Each mutation is validated
// separately so a malformed one never rejects the rest of the batch.
func (v *MutationValidator) validateBatch(_ context.Context, batch models.BatchRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldBatchSize}
	}

	for _, f := range fields {
		switch f {
		case FieldBatchSize:
			if v.maxBatchSize > 0 && len(batch.Mutations) > v.maxBatchSize {
				return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch.Mutations), v.maxBatchSize)
			}
		default:
			return ErrUnknownField
		}
	}
	return nil
}

func (v *MutationValidator) validateOpenSession(_ context.Context, request models.OpenSessionRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldSessionType}
	}

	for _, f := range fields {
		switch f {
		case FieldSessionType:
			if request.Type != "" && !request.Type.Valid() {
				return ErrInvalidSessionType
			}
		default:
			return ErrUnknownField
		}
	}
	return nil
}

func (v *MutationValidator) validateResolveConflict(_ context.Context, request models.ResolveConflictRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldConflictID, FieldResolution, FieldOperatorID, FieldPayload}
	}

	for _, f := range fields {
		switch f {
		case FieldConflictID:
			if request.ConflictID == "" {
				return ErrEmptyConflictID
			}
		case FieldResolution:
			if !request.Resolution.Valid() || request.Resolution == models.ResolutionPending {
				return ErrInvalidResolution
			}
		case FieldOperatorID:
			if request.OperatorID == "" {
				return ErrEmptyOperatorID
			}
		case FieldPayload:
			if len(request.Payload) > 0 && request.Resolution != models.ResolutionMerge {
				return ErrPayloadNotMerge
			}
		default:
			return ErrUnknownField
		}
	}
	return nil
}
