package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/banmen/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Registry はゲーム種別IDからゲーム定義とルールエンジンを引くレジストリ。
// 起動時に構築し、以降は読み取り専用として扱う。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	desc   model.GameTypeDescriptor
	engine Engine
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// NormalizeID はゲーム種別IDを正規化する。
func NormalizeID(id string) string {
	return slug.Make(id)
}

// Register はゲーム種別を登録する。同じIDの二重登録はエラーとする。
// 同時着手のゲームはSimultaneousGameを返すエンジンであること。
func (r *Registry) Register(desc model.GameTypeDescriptor, engine Engine) error {
	if engine == nil {
		return fmt.Errorf("engine for %q is nil", desc.ID)
	}
	desc.ID = NormalizeID(desc.ID)
	if desc.ID == "" {
		return fmt.Errorf("game type id is empty")
	}
	if desc.MinPlayers < 1 || desc.MaxPlayers < desc.MinPlayers {
		return fmt.Errorf("invalid player range for %q: %d-%d", desc.ID, desc.MinPlayers, desc.MaxPlayers)
	}
	if desc.Capabilities.Has(model.CapPieEven) && !desc.Capabilities.Has(model.CapPie) {
		return fmt.Errorf("%q: pie-even requires pie", desc.ID)
	}
	if desc.Capabilities.Has(model.CapSimultaneous) && desc.Capabilities.Has(model.CapPie) {
		return fmt.Errorf("%q: pie is not supported for simultaneous games", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.ID]; exists {
		return fmt.Errorf("game type %q is already registered", desc.ID)
	}
	r.entries[desc.ID] = registryEntry{desc: desc, engine: engine}
	return nil
}

// Lookup はゲーム種別の定義とエンジンを返す。
// 未登録の場合はUNKNOWN_GAME_TYPEのAPIErrorを返す。
func (r *Registry) Lookup(gameType string) (*model.GameTypeDescriptor, Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[NormalizeID(gameType)]
	if !ok {
		return nil, nil, model.NewUnknownGameTypeError(gameType)
	}
	desc := e.desc
	return &desc, e.engine, nil
}

// Descriptors は登録済みのゲーム定義をID順で返す。
func (r *Registry) Descriptors() []model.GameTypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.GameTypeDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// catalogFile はゲームカタログYAMLの構造。
type catalogFile struct {
	Games []catalogGame `yaml:"games"`
}

type catalogGame struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Engine       string   `yaml:"engine"`
	MinPlayers   int      `yaml:"min_players"`
	MaxPlayers   int      `yaml:"max_players"`
	Capabilities []string `yaml:"capabilities"`
	Variants     []string `yaml:"variants"`
}

// LoadCatalog はYAMLのゲームカタログを読み込み、Registryを構築する。
// enginesはカタログのengine名からEngineへの対応表。
func LoadCatalog(r io.Reader, engines map[string]Engine) (*Registry, error) {
	var cf catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to parse game catalog: %w", err)
	}

	reg := NewRegistry()
	for _, g := range cf.Games {
		engine, ok := engines[g.Engine]
		if !ok {
			return nil, fmt.Errorf("game %q: unknown engine %q", g.ID, g.Engine)
		}
		caps, err := model.ParseCapabilities(g.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("game %q: %w", g.ID, err)
		}
		name := g.Name
		if name == "" {
			name = g.ID
		}
		desc := model.GameTypeDescriptor{
			ID:              g.ID,
			Name:            name,
			MinPlayers:      g.MinPlayers,
			MaxPlayers:      g.MaxPlayers,
			Capabilities:    caps,
			DefaultVariants: g.Variants,
		}
		if err := reg.Register(desc, engine); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuiltinEngines は同梱のルールエンジンを返す。
func BuiltinEngines() map[string]Engine {
	return map[string]Engine{
		"nim":  NimEngine{},
		"race": RaceEngine{},
	}
}

// DefaultRegistry は同梱のカタログとエンジンでRegistryを構築する。
func DefaultRegistry() (*Registry, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog), BuiltinEngines())
}
