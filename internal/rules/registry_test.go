package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/banmen/internal/model"
)

func TestDefaultRegistry_LoadsEmbeddedCatalog(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, d := range reg.Descriptors() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"nim", "nim-even", "nim-pie", "race"}, ids)

	desc, engine, err := reg.Lookup("Nim Even")
	require.NoError(t, err)
	assert.IsType(t, NimEngine{}, engine)
	assert.True(t, desc.Capabilities.Has(model.CapPie))
	assert.True(t, desc.Capabilities.Has(model.CapPieEven))
	assert.Equal(t, []string{"passes"}, desc.DefaultVariants)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Lookup("chess")
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeUnknownGameType))
}

func TestRegistry_RegisterRejectsInvalidDescriptors(t *testing.T) {
	tests := []struct {
		name string
		desc model.GameTypeDescriptor
	}{
		{"empty id", model.GameTypeDescriptor{ID: " ", MinPlayers: 2, MaxPlayers: 2}},
		{"bad range", model.GameTypeDescriptor{ID: "x", MinPlayers: 3, MaxPlayers: 2}},
		{"pie-even without pie", model.GameTypeDescriptor{ID: "x", MinPlayers: 2, MaxPlayers: 2,
			Capabilities: model.CapabilitySet(0).With(model.CapPieEven)}},
		{"simultaneous pie", model.GameTypeDescriptor{ID: "x", MinPlayers: 2, MaxPlayers: 2,
			Capabilities: model.CapabilitySet(0).With(model.CapPie).With(model.CapSimultaneous)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.desc, NimEngine{})
			assert.Error(t, err)
		})
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	desc := model.GameTypeDescriptor{ID: "nim", MinPlayers: 2, MaxPlayers: 2}
	require.NoError(t, reg.Register(desc, NimEngine{}))
	assert.Error(t, reg.Register(desc, NimEngine{}))
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown engine", "games:\n  - id: go\n    engine: go\n    min_players: 2\n    max_players: 2\n"},
		{"unknown capability", "games:\n  - id: nim\n    engine: nim\n    min_players: 2\n    max_players: 2\n    capabilities: [teleport]\n"},
		{"unknown field", "games:\n  - id: nim\n    engine: nim\n    colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(tt.yaml), BuiltinEngines())
			assert.Error(t, err)
		})
	}
}
