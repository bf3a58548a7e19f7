package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
entities:
  cliente:
    delete_wins: true
  venta:
    merge_disjoint: false
`))
	require.NoError(t, err)

	assert.True(t, rules.DeleteWins(models.EntityCliente))
	assert.False(t, rules.DeleteWins(models.EntityVenta))
	assert.True(t, rules.MergeDisjoint(models.EntityCliente))
	assert.False(t, rules.MergeDisjoint(models.EntityVenta))
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown entity", doc: "entities:\n  producto:\n    delete_wins: true\n"},
		{name: "unknown field", doc: "entities:\n  cliente:\n    last_writer_wins: true\n"},
		{name: "not yaml", doc: "entities: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

func TestLoadRules(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		rules, err := LoadRules("")
		require.NoError(t, err)
		assert.False(t, rules.DeleteWins(models.EntityVenta))
		assert.True(t, rules.MergeDisjoint(models.EntityVenta))
	})

	t.Run("empty file gives defaults", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(p, nil, 0o600))

		rules, err := LoadRules(p)
		require.NoError(t, err)
		assert.Empty(t, rules.Entities)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
