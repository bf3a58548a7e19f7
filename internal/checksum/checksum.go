package checksum

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-sync/models"
	"golang.org/x/crypto/blake2b"
)

// Domain separates mutation checksums from any other hash in the system.
const Domain = "go-pos-sync/mutation/v1"

// Input is the content that identifies a mutation.
type Input struct {
	Entity      models.EntityName
	EntityID    string
	Operation   models.Operation
	BaseVersion time.Time
	Payload     models.Payload
}

// FromRecord extracts the identifying content of m.
func FromRecord(m models.MutationRecord) Input {
	return Input{
		Entity:      m.Entity,
		EntityID:    m.EntityID,
		Operation:   m.Operation,
		BaseVersion: m.BaseVersion,
		Payload:     m.Payload,
	}
}

// Compute returns the hex-encoded blake2b-256 checksum of in.
func Compute(in Input) (string, error) {
	values, err := in.Payload.Values()
	if err != nil {
		return "", err
	}

	doc := map[string]any{
		"entity":       string(in.Entity),
		"entity_id":    in.EntityID,
		"operation":    string(in.Operation),
		"base_version": formatVersion(in.BaseVersion),
		"payload":      values,
	}
	canonical, err := Canonical(doc)
	if err != nil {
		return "", fmt.Errorf("error encoding mutation: %w", err)
	}

	return Sum(Domain, canonical), nil
}

// Sum hashes data under the given domain separator.
func Sum(domain string, data []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func formatVersion(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.TruncateVersion(t).Format(time.RFC3339Nano)
}
