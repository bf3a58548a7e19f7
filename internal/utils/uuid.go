package utils

import "github.com/google/uuid"

// IDGenerator produces identifiers for sessions, conflicts and locally
// recorded mutations.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates time-ordered UUIDv7 identifiers.
type UUIDGenerator struct{}

// NewUUIDGenerator returns a [UUIDGenerator].
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate implements [IDGenerator]. It falls back to a random v4 id when a
// v7 id cannot be produced.
func (g *UUIDGenerator) Generate() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}

// SequenceGenerator returns ids from a fixed list and then falls back to
// UUIDv7. It makes generated ids predictable in tests.
type SequenceGenerator struct {
	ids  []string
	next int
}

// NewSequenceGenerator returns a [SequenceGenerator] over ids.
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate implements [IDGenerator]. It is not safe for concurrent use.
func (g *SequenceGenerator) Generate() string {
	if g.next < len(g.ids) {
		id := g.ids[g.next]
		g.next++
		return id
	}
	return NewUUIDGenerator().Generate()
}
