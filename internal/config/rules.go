package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MKhiriev/go-pos-sync/models"
)

// EntityRule tunes automatic conflict resolution for one entity type.
type EntityRule struct {
	// DeleteWins lets a local delete override a concurrent server update.
	DeleteWins bool `yaml:"delete_wins"`

	// MergeDisjoint enables automatic merge of updates touching disjoint
	// fields. Defaults to true.
	MergeDisjoint *bool `yaml:"merge_disjoint,omitempty"`
}

// Rules is the per-entity resolution policy loaded from YAML:
//
//	entities:
//	  cliente:
//	    delete_wins: false
//	  venta:
//	    merge_disjoint: false
type Rules struct {
	Entities map[models.EntityName]EntityRule `yaml:"entities"`
}

// DefaultRules escalates delete-vs-update and merges disjoint updates for
// every entity.
func DefaultRules() Rules {
	return Rules{Entities: map[models.EntityName]EntityRule{}}
}

// LoadRules reads the rules file at path. An empty path yields
// [DefaultRules].
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("error reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rules document. Unknown keys and unknown entity
// names are rejected.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	if len(bytes.TrimSpace(data)) == 0 {
		return rules, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	if rules.Entities == nil {
		rules.Entities = map[models.EntityName]EntityRule{}
	}

	for entity := range rules.Entities {
		if !entity.Valid() {
			return Rules{}, fmt.Errorf("%w: unknown entity %q", ErrInvalidRules, entity)
		}
	}
	return rules, nil
}

// DeleteWins reports whether a local delete beats a concurrent update.
func (r Rules) DeleteWins(entity models.EntityName) bool {
	return r.Entities[entity].DeleteWins
}

// MergeDisjoint reports whether disjoint updates merge automatically.
func (r Rules) MergeDisjoint(entity models.EntityName) bool {
	rule, ok := r.Entities[entity]
	if !ok || rule.MergeDisjoint == nil {
		return true
	}
	return *rule.MergeDisjoint
}
